// Package codec provides a deterministic binary encoding of ground value
// tuples. The encoding is the structural identity used for tabling keys,
// result deduplication, and storage keys: two tuples encode to the same
// bytes exactly when they are structurally equal, and the byte ordering is
// stable across runs.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/wbrown/horn/horn"
)

// Type tags. Each encoded value starts with a 1-byte tag so decoding is
// self-describing and keys for different types never collide.
const (
	tagInt byte = iota + 1
	tagString
	tagBool
	tagStruct
	tagVariant
)

// EncodeTuple serializes a ground tuple to its canonical byte form.
func EncodeTuple(tuple []horn.Value) []byte {
	buf := make([]byte, 0, 16*len(tuple)+2)
	buf = appendUvarint(buf, uint64(len(tuple)))
	for _, v := range tuple {
		buf = AppendValue(buf, v)
	}
	return buf
}

// TupleKey returns the canonical encoding as a string, suitable for map
// keys.
func TupleKey(tuple []horn.Value) string {
	return string(EncodeTuple(tuple))
}

// AppendValue appends the canonical encoding of one value.
func AppendValue(buf []byte, v horn.Value) []byte {
	switch val := v.(type) {
	case int64:
		buf = append(buf, tagInt)
		var tmp [8]byte
		// Offset so negative values sort below positive ones bytewise.
		binary.BigEndian.PutUint64(tmp[:], uint64(val)^(1<<63))
		return append(buf, tmp[:]...)
	case string:
		buf = append(buf, tagString)
		buf = appendUvarint(buf, uint64(len(val)))
		return append(buf, val...)
	case bool:
		buf = append(buf, tagBool)
		if val {
			return append(buf, 1)
		}
		return append(buf, 0)
	case horn.Struct:
		buf = append(buf, tagStruct)
		buf = appendString(buf, val.Type)
		buf = appendString(buf, val.Ctor)
		buf = appendUvarint(buf, uint64(len(val.Fields)))
		for _, f := range val.Fields {
			buf = AppendValue(buf, f)
		}
		return buf
	case horn.Variant:
		buf = append(buf, tagVariant)
		buf = appendString(buf, val.Type)
		buf = appendString(buf, val.Name)
		buf = appendUvarint(buf, uint64(len(val.Fields)))
		for _, f := range val.Fields {
			buf = AppendValue(buf, f)
		}
		return buf
	default:
		panic(fmt.Sprintf("codec: unknown value type %T", v))
	}
}

// DecodeTuple parses a tuple from its canonical encoding.
func DecodeTuple(data []byte) ([]horn.Value, error) {
	n, rest, err := readUvarint(data)
	if err != nil {
		return nil, err
	}
	tuple := make([]horn.Value, 0, n)
	for i := uint64(0); i < n; i++ {
		var v horn.Value
		v, rest, err = decodeValue(rest)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
		tuple = append(tuple, v)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing %d bytes after tuple", len(rest))
	}
	return tuple, nil
}

func decodeValue(data []byte) (horn.Value, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("unexpected end of input")
	}
	tag, data := data[0], data[1:]
	switch tag {
	case tagInt:
		if len(data) < 8 {
			return nil, nil, fmt.Errorf("truncated int")
		}
		u := binary.BigEndian.Uint64(data[:8])
		return int64(u ^ (1 << 63)), data[8:], nil
	case tagString:
		s, rest, err := readString(data)
		return s, rest, err
	case tagBool:
		if len(data) < 1 {
			return nil, nil, fmt.Errorf("truncated bool")
		}
		return data[0] == 1, data[1:], nil
	case tagStruct, tagVariant:
		typeName, rest, err := readString(data)
		if err != nil {
			return nil, nil, err
		}
		name, rest, err := readString(rest)
		if err != nil {
			return nil, nil, err
		}
		n, rest, err := readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		fields := make([]horn.Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var f horn.Value
			f, rest, err = decodeValue(rest)
			if err != nil {
				return nil, nil, err
			}
			fields = append(fields, f)
		}
		if tag == tagStruct {
			return horn.Struct{Type: typeName, Ctor: name, Fields: fields}, rest, nil
		}
		return horn.Variant{Type: typeName, Name: name, Fields: fields}, rest, nil
	default:
		return nil, nil, fmt.Errorf("unknown value tag %d", tag)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendUvarint(buf []byte, n uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(tmp[:], n)
	return append(buf, tmp[:w]...)
}

func readUvarint(data []byte) (uint64, []byte, error) {
	n, w := binary.Uvarint(data)
	if w <= 0 {
		return 0, nil, fmt.Errorf("invalid varint")
	}
	return n, data[w:], nil
}

func readString(data []byte) (string, []byte, error) {
	n, rest, err := readUvarint(data)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, fmt.Errorf("truncated string")
	}
	return string(rest[:n]), rest[n:], nil
}
