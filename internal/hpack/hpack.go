// Package hpack implements the subset of RFC 7541 sufficient for gRPC
// header sets (spec §4.3): a static table carrying the canonical gRPC
// entries, indexed representation, and literal-without-indexing with a
// 0x00 prefix byte. The encoder never populates a dynamic table (Design
// Notes: "Dynamic-table usage ... may safely be omitted in the core
// profile"); the decoder tolerates the indexed and literal-with-indexing
// representations too, so it interoperates with peers that do use one,
// but never grows a persistent table of its own.
//
// Unlike the retrieved teacher snippet, literal string lengths here always
// use a 7-bit prefix per RFC 7541 §5.2 regardless of representation —
// the teacher's encoder reused a 7-bit prefix for every representation's
// index subfield too, which the RFC does not allow (Design Notes, Open
// Questions). Huffman encoding is not implemented; emitted strings never
// set the Huffman bit, and the decoder refuses to decode one it receives.
package hpack

import (
	"errors"
	"fmt"
)

// Field is a single decoded or to-be-encoded header field.
type Field struct {
	Name, Value string
}

var (
	ErrIndexZero     = errors.New("hpack: indexed field index 0 is invalid")
	ErrIndexNotFound = errors.New("hpack: index refers to an unknown table entry")
	ErrHuffman       = errors.New("hpack: huffman-encoded strings are not supported")
	ErrTruncated     = errors.New("hpack: truncated header block")
	ErrIntOverflow   = errors.New("hpack: integer encoding overflow")
)

// staticTable holds the canonical gRPC header set used across C3/C4. Index
// 0 in this slice is logical HPACK index 1 (HPACK static-table indices are
// 1-based).
var staticTable = []Field{
	{":authority", ""},
	{":method", "POST"},
	{":path", ""},
	{":scheme", "https"},
	{"content-type", "application/grpc"},
	{"grpc-encoding", "identity"},
	{"grpc-accept-encoding", "identity"},
	{"te", "trailers"},
}

// StaticIndexOf returns the 1-based static table index for an exact
// ⟨name, value⟩ match, or 0 if there is none.
func StaticIndexOf(name, value string) uint64 {
	for i, f := range staticTable {
		if f.Name == name && f.Value == value {
			return uint64(i + 1)
		}
	}
	return 0
}

// Encoder appends HPACK-encoded header fields to a byte buffer. It carries
// no per-connection state: the core profile's encoder is static-table-only
// (spec §4.3), so every Encoder is interchangeable.
type Encoder struct{}

// NewEncoder returns an Encoder ready for use.
func NewEncoder() *Encoder { return &Encoder{} }

// EncodeField appends the HPACK representation of f to dst and returns the
// extended slice. An exact static-table hit is encoded as a single indexed
// byte; everything else is encoded as literal-without-indexing (new name).
func (e *Encoder) EncodeField(dst []byte, f Field) []byte {
	if idx := StaticIndexOf(f.Name, f.Value); idx != 0 {
		return appendInt(dst, 0x80, 7, idx)
	}
	dst = append(dst, 0x00) // literal without indexing, new name
	dst = appendString(dst, f.Name)
	dst = appendString(dst, f.Value)
	return dst
}

// EncodeFields encodes fields in order into a freshly allocated buffer.
func (e *Encoder) EncodeFields(fields []Field) []byte {
	var dst []byte
	for _, f := range fields {
		dst = e.EncodeField(dst, f)
	}
	return dst
}

// Decoder decodes an HPACK header block back into Fields. Like Encoder it
// is stateless: the core profile never populates a dynamic table, so there
// is nothing to carry between calls.
type Decoder struct{}

// NewDecoder returns a Decoder ready for use.
func NewDecoder() *Decoder { return &Decoder{} }

// DecodeFields parses the entirety of data as a sequence of header field
// representations.
func (d *Decoder) DecodeFields(data []byte) ([]Field, error) {
	var out []Field
	for len(data) > 0 {
		f, rest, err := decodeOne(data)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
		data = rest
	}
	return out, nil
}

func decodeOne(b []byte) (Field, []byte, error) {
	c := b[0]
	switch {
	case c&0x80 == 0x80: // indexed header field, 7-bit prefix
		rest, idx, err := readInt(7, b)
		if err != nil {
			return Field{}, nil, err
		}
		if idx == 0 {
			return Field{}, nil, ErrIndexZero
		}
		f, err := staticAt(idx)
		return f, rest, err

	case c&0xC0 == 0x40: // literal with incremental indexing, 6-bit prefix
		rest, idx, err := readInt(6, b)
		if err != nil {
			return Field{}, nil, err
		}
		return readLiteral(idx, rest)

	case c&0xF0 == 0x00, c&0xF0 == 0x10: // literal without / never indexed, 4-bit prefix
		rest, idx, err := readInt(4, b)
		if err != nil {
			return Field{}, nil, err
		}
		return readLiteral(idx, rest)

	default: // 001xxxxx: dynamic table size update, not used in this profile
		return Field{}, nil, fmt.Errorf("hpack: unsupported representation byte 0x%02x", c)
	}
}

func readLiteral(nameIdx uint64, b []byte) (Field, []byte, error) {
	var name string
	var err error
	if nameIdx == 0 {
		b, name, err = readString(b)
		if err != nil {
			return Field{}, nil, err
		}
	} else {
		f, err := staticAt(nameIdx)
		if err != nil {
			return Field{}, nil, err
		}
		name = f.Name
	}
	b, value, err := readString(b)
	if err != nil {
		return Field{}, nil, err
	}
	return Field{Name: name, Value: value}, b, nil
}

func staticAt(idx uint64) (Field, error) {
	if idx == 0 || idx > uint64(len(staticTable)) {
		return Field{}, ErrIndexNotFound
	}
	return staticTable[idx-1], nil
}

// readInt decodes an RFC 7541 §5.1 integer with an n-bit prefix.
func readInt(n int, b []byte) ([]byte, uint64, error) {
	if len(b) == 0 {
		return nil, 0, ErrTruncated
	}
	mask := byte(1<<uint(n)) - 1
	v := uint64(b[0] & mask)
	b = b[1:]
	if v < uint64(mask) {
		return b, v, nil
	}
	var m uint
	for {
		if len(b) == 0 {
			return nil, 0, ErrTruncated
		}
		c := b[0]
		b = b[1:]
		v += uint64(c&0x7f) << m
		if c&0x80 == 0 {
			break
		}
		m += 7
		if m >= 63 {
			return nil, 0, ErrIntOverflow
		}
	}
	return b, v, nil
}

// appendInt encodes v with an n-bit prefix, ORing the high control bits of
// the representation (e.g. 0x80 for indexed) into the first byte.
func appendInt(dst []byte, ctrl byte, n int, v uint64) []byte {
	mask := uint64(1<<uint(n)) - 1
	if v < mask {
		return append(dst, ctrl|byte(v))
	}
	dst = append(dst, ctrl|byte(mask))
	v -= mask
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// readString decodes a length-prefixed string with a 7-bit prefix
// (RFC 7541 §5.2). The high bit of the length byte is the Huffman flag;
// since the encoder never sets it, a decoder encountering it refuses.
func readString(b []byte) ([]byte, string, error) {
	if len(b) == 0 {
		return nil, "", ErrTruncated
	}
	huffman := b[0]&0x80 == 0x80
	rest, length, err := readInt(7, b)
	if err != nil {
		return nil, "", err
	}
	if huffman {
		return nil, "", ErrHuffman
	}
	if uint64(len(rest)) < length {
		return nil, "", ErrTruncated
	}
	return rest[length:], string(rest[:length]), nil
}

// appendString appends s as a non-Huffman literal string.
func appendString(dst []byte, s string) []byte {
	dst = appendInt(dst, 0x00, 7, uint64(len(s)))
	return append(dst, s...)
}
