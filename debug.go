// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"fmt"
	"io"
)

// CodecDump is a debugging helper, it implements the Codec interface and
// dumps the frames passing through the wrapped codec.
//
// The dump format is:
//
//	M|U:TypeID:BodySize\nBody\n\n
type CodecDump struct {
	Codec Codec
	Dump  io.Writer

	// Filter can be nil. If nil, dump all frames.
	Filter func(f MessageFrame, unmarshal bool) bool
}

func (d *CodecDump) needDump(f MessageFrame, unmarshal bool) bool {
	if d.Filter != nil {
		return d.Filter(f, unmarshal)
	}
	return true
}

func (d *CodecDump) Marshal(m Message) (MessageFrame, error) {
	f, err := d.Codec.Marshal(m)
	if err != nil {
		return f, err
	}

	if d.needDump(f, false) {
		fmt.Fprintf(d.Dump, "M:%v:%v\n", f.TypeID, len(f.Body))
		d.Dump.Write(f.Body)
		fmt.Fprintf(d.Dump, "\n\n")
	}

	return f, nil
}

func (d *CodecDump) Unmarshal(f MessageFrame) (Message, error) {
	m, err := d.Codec.Unmarshal(f)
	if err != nil {
		return nil, err
	}

	if d.needDump(f, true) {
		fmt.Fprintf(d.Dump, "U:%v:%v\n", f.TypeID, len(f.Body))
		d.Dump.Write(f.Body)
		fmt.Fprintf(d.Dump, "\n\n")
	}

	return m, nil
}
