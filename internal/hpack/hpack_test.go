package hpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripCanonicalGRPCHeaders(t *testing.T) {
	fields := []Field{
		{":method", "POST"},
		{":scheme", "https"},
		{":path", "/Echo/Do"},
		{":authority", "example.com"},
		{"content-type", "application/grpc"},
		{"grpc-encoding", "identity"},
		{"grpc-accept-encoding", "identity"},
		{"te", "trailers"},
	}

	enc := NewEncoder()
	encoded := enc.EncodeFields(fields)

	dec := NewDecoder()
	decoded, err := dec.DecodeFields(encoded)
	require.NoError(t, err)
	require.Equal(t, fields, decoded)
}

func TestStaticHitUsesSingleIndexedByte(t *testing.T) {
	enc := NewEncoder()
	encoded := enc.EncodeField(nil, Field{":scheme", "https"})
	require.Len(t, encoded, 1)
	require.Equal(t, byte(0x80|4), encoded[0])
}

func TestNonStaticValueUsesLiteralWithoutIndexing(t *testing.T) {
	enc := NewEncoder()
	encoded := enc.EncodeField(nil, Field{":path", "/Foo/Bar"})
	require.Equal(t, byte(0x00), encoded[0])
}

func TestDecodeIndexZeroIsRejected(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.DecodeFields([]byte{0x80})
	require.ErrorIs(t, err, ErrIndexZero)
}

func TestDecodeUnknownIndexIsRejected(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.DecodeFields([]byte{0xFF, 0x7F})
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestDecodeLiteralWithIncrementalIndexingDoesNotPersist(t *testing.T) {
	dec := NewDecoder()
	block := append([]byte{0x40}, mustAppendString(nil, "x-custom")...)
	block = mustAppendString(block, "v1")
	fields, err := dec.DecodeFields(block)
	require.NoError(t, err)
	require.Equal(t, []Field{{"x-custom", "v1"}}, fields)

	// A second, independent decode must not see any state left behind.
	fields2, err := dec.DecodeFields(block)
	require.NoError(t, err)
	require.Equal(t, fields, fields2)
}

func mustAppendString(dst []byte, s string) []byte {
	return appendString(dst, s)
}
