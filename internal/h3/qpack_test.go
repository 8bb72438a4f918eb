package h3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQPACKStaticFieldRoundTrip(t *testing.T) {
	fields := []Field{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/Echo/Do"},
		{Name: "content-type", Value: "application/grpc"},
	}
	enc := EncodeFieldSection(fields)
	got, err := DecodeFieldSection(enc)
	require.NoError(t, err)
	require.Equal(t, fields, got)
}

func TestQPACKIndexedLineUsedForStaticHit(t *testing.T) {
	enc := EncodeFieldSection([]Field{{Name: ":method", Value: "POST"}})
	// prefix (2 varints) + 1 indexed byte
	require.Len(t, enc, 3)
	require.Equal(t, byte(0xC0|1), enc[2])
}

func TestQPACKRejectsNonZeroRequiredInsertCount(t *testing.T) {
	bad := AppendVarInt(nil, 1) // Required Insert Count != 0
	bad = AppendVarInt(bad, 0)
	_, err := DecodeFieldSection(bad)
	require.ErrorIs(t, err, ErrQPACKBlockedInsert)
}
