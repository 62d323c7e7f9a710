package msghub

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// pingMessage is a small self-marshaling message for registry tests.
type pingMessage struct {
	Seq uint32
}

func (m *pingMessage) TypeID() uint16 { return 11 }

func (m *pingMessage) MarshalBinary() ([]byte, error) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], m.Seq)
	return b[:], nil
}

func (m *pingMessage) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return errNotMarshaler
	}
	m.Seq = binary.LittleEndian.Uint32(data)
	return nil
}

func TestRegistryCodec(test *testing.T) {
	c := NewRegistryCodec()
	c.Register(11, func() Message { return &pingMessage{} })

	f, err := c.Marshal(&pingMessage{Seq: 9})
	if err != nil {
		test.Fatal(err)
	}
	if f.TypeID != 11 || len(f.Body) != 4 {
		test.Fatal("codec: frame", f)
	}

	m, err := c.Unmarshal(f)
	if err != nil {
		test.Fatal(err)
	}
	if m.(*pingMessage).Seq != 9 {
		test.Fatal("codec: round trip", m)
	}

	if _, err := c.Unmarshal(NewMessageFrame(42, nil)); err == nil {
		test.Fatal("codec: unknown type accepted")
	}
}

func TestRawCodec(test *testing.T) {
	c := RawCodec{}

	f, err := c.Marshal(&RawMessage{ID: 5, Data: []byte("raw")})
	if err != nil {
		test.Fatal(err)
	}
	if f.TypeID != 5 || string(f.Body) != "raw" {
		test.Fatal("codec: raw frame", f)
	}

	m, err := c.Unmarshal(f)
	if err != nil {
		test.Fatal(err)
	}
	rm := m.(*RawMessage)
	if rm.ID != 5 || string(rm.Data) != "raw" {
		test.Fatal("codec: raw round trip", rm)
	}

	// the decoded body is a copy, not a view of the frame.
	f.Body[0] = 'X'
	if string(rm.Data) != "raw" {
		test.Fatal("codec: aliased body")
	}

	if _, err := c.Marshal(&pingMessage{}); err != errNotMarshaler {
		test.Fatal("codec: foreign message", err)
	}
}

func TestCodecDump(test *testing.T) {
	dump := &bytes.Buffer{}
	d := &CodecDump{Codec: RawCodec{}, Dump: dump}

	f, err := d.Marshal(&RawMessage{ID: 1, Data: []byte("m1")})
	if err != nil {
		test.Fatal(err)
	}
	if _, err := d.Unmarshal(f); err != nil {
		test.Fatal(err)
	}

	if dump.Len() != 20 {
		test.Fatal("dump format", dump.Len(), dump.String())
	}
}

func TestCodecDumpFilter(test *testing.T) {
	dump := &bytes.Buffer{}
	d := &CodecDump{
		Codec:  RawCodec{},
		Dump:   dump,
		Filter: func(f MessageFrame, unmarshal bool) bool { return !unmarshal },
	}

	f, err := d.Marshal(&RawMessage{ID: 1, Data: []byte("m1")})
	if err != nil {
		test.Fatal(err)
	}
	if _, err := d.Unmarshal(f); err != nil {
		test.Fatal(err)
	}

	if dump.Len() != 10 {
		test.Fatal("dump filter", dump.Len(), dump.String())
	}
}
