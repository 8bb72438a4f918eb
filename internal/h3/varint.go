// Package h3 implements the HTTP/3 adapter (C4): RFC 9114 framing over an
// opaque QUIC stream provider, QPACK's static-table-only profile, and
// RFC 9000 §16 variable-length integers. The QUIC layer itself is
// consumed, not reimplemented (spec §1's "underlying QUIC datagram layer
// ... consumed as an opaque stream provider"): this package depends on
// github.com/quic-go/quic-go, the real-world ecosystem QUIC
// implementation also vendored by several repos in the retrieved pack
// (other_examples/…grafana-k6 vendored quic-go/http3,
// …luoxk-restys internal/http3/client.go, …cloudflared connection/quic.go).
package h3

import (
	"errors"
	"io"
)

var ErrVarIntOverflow = errors.New("h3: varint value does not fit in 62 bits")

// ReadVarInt decodes one RFC 9000 §16 variable-length integer from r.
// The two high bits of the first byte select the length class: 00 → 1
// byte / 6-bit value, 01 → 2 bytes / 14-bit, 10 → 4 bytes / 30-bit,
// 11 → 8 bytes / 62-bit.
func ReadVarInt(r io.ByteReader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	length := 1 << (first >> 6) // 1, 2, 4, or 8
	v := uint64(first & 0x3f)

	for i := 1; i < length; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v = (v << 8) | uint64(b)
	}
	return v, nil
}

// AppendVarInt appends the RFC 9000 §16 encoding of v to dst, choosing the
// smallest length class that fits.
func AppendVarInt(dst []byte, v uint64) []byte {
	switch {
	case v <= 0x3f:
		return append(dst, byte(v))
	case v <= 0x3fff:
		return append(dst, byte(v>>8)|0x40, byte(v))
	case v <= 0x3fffffff:
		return append(dst, byte(v>>24)|0x80, byte(v>>16), byte(v>>8), byte(v))
	case v <= 0x3fffffffffffffff:
		return append(dst, byte(v>>56)|0xc0, byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		panic(ErrVarIntOverflow)
	}
}

// VarIntLen returns the number of bytes AppendVarInt would emit for v.
func VarIntLen(v uint64) int {
	switch {
	case v <= 0x3f:
		return 1
	case v <= 0x3fff:
		return 2
	case v <= 0x3fffffff:
		return 4
	default:
		return 8
	}
}
