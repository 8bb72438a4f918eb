package h3

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 63, 64, 16383, 16384, 1073741823, 1073741824, 1 << 40}
	for _, v := range cases {
		buf := AppendVarInt(nil, v)
		require.Equal(t, VarIntLen(v), len(buf))

		got, err := ReadVarInt(bufio.NewReader(bytes.NewReader(buf)))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestVarIntLengthClasses(t *testing.T) {
	require.Equal(t, 1, VarIntLen(37))
	require.Equal(t, 2, VarIntLen(15293))
	require.Equal(t, 4, VarIntLen(494878333))
	require.Equal(t, 8, VarIntLen(151288809941952652))
}
