// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// FrameHeaderSize is the fixed wire header: 2-byte little-endian type id
// followed by a 4-byte little-endian body length.
const FrameHeaderSize = 6

// FrameMaxBodyLength is the maximum frame body length. A header announcing
// more than this indicates stream corruption.
const FrameMaxBodyLength = 32 * 1024 * 1024

var (
	errFrameLength = errors.New("frame io: wrong frame length")
)

// MessageFrame is one (type id, body) unit on the wire.
//
// Body is never nil for a valid frame, a zero-length body is an empty
// non-nil slice.
type MessageFrame struct {
	TypeID uint16
	Body   []byte
}

// NewMessageFrame normalizes a nil body to an empty one.
func NewMessageFrame(typeID uint16, body []byte) MessageFrame {
	if body == nil {
		body = []byte{}
	}
	return MessageFrame{TypeID: typeID, Body: body}
}

func (f MessageFrame) encodedSize() int {
	return FrameHeaderSize + len(f.Body)
}

// AppendFrame appends the wire image of f to buf and returns the
// extended buffer.
func AppendFrame(buf []byte, f MessageFrame) []byte {
	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], f.TypeID)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(f.Body)))
	buf = append(buf, hdr[:]...)
	return append(buf, f.Body...)
}

// The send path assembles each frame batch into one pooled buffer so a
// batch reaches the socket in a single write call.
var sendBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// WriteFrame writes one frame to w in a single write call.
func WriteFrame(w io.Writer, f MessageFrame) error {
	return WriteFrames(w, []MessageFrame{f})
}

// WriteFrames writes the batch to w as one contiguous buffer, so the
// frames are delivered in order with no interleaving relative to w.
func WriteFrames(w io.Writer, fs []MessageFrame) error {
	bp := sendBufPool.Get().(*[]byte)
	buf := (*bp)[:0]
	for _, f := range fs {
		buf = AppendFrame(buf, f)
	}

	_, err := w.Write(buf)

	*bp = buf[:0]
	sendBufPool.Put(bp)
	return err
}

// WriteFrameContext is WriteFrame honoring cancellation before the
// socket write.
func WriteFrameContext(ctx context.Context, w io.Writer, f MessageFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteFrame(w, f)
}

// FrameReader decodes frames from a byte stream, tolerating arbitrary
// fragmentation. It is not safe for concurrent use, each socket has
// exactly one reader.
type FrameReader struct {
	r   io.Reader
	hdr [FrameHeaderSize]byte
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads exactly one frame. Cancellation is honored between
// the header and body reads. A transport failure is returned as-is, a
// clean end of stream before the header is io.EOF, an end of stream
// inside the body is io.ErrUnexpectedEOF, and a body length above
// FrameMaxBodyLength is reported as errFrameLength.
func (fr *FrameReader) ReadFrame(ctx context.Context) (MessageFrame, error) {
	if err := ctx.Err(); err != nil {
		return MessageFrame{}, err
	}

	if _, err := io.ReadFull(fr.r, fr.hdr[:]); err != nil {
		return MessageFrame{}, err
	}

	typeID := binary.LittleEndian.Uint16(fr.hdr[0:2])
	length := binary.LittleEndian.Uint32(fr.hdr[2:6])
	if length > FrameMaxBodyLength {
		return MessageFrame{}, errFrameLength
	}

	if err := ctx.Err(); err != nil {
		return MessageFrame{}, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return MessageFrame{}, err
	}

	return MessageFrame{TypeID: typeID, Body: body}, nil
}
