package grpcframe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body := []byte("Hi")
	encoded := Encode(body, false)
	require.Equal(t, byte(0), encoded[0])
	require.Len(t, encoded, PrefixLen+len(body))

	r := NewReassembler()
	defer r.Release()

	messages, err := r.Feed(encoded)
	require.NoError(t, err)
	require.Equal(t, [][]byte{body}, messages)
	require.False(t, r.Pending())
}

func TestReassemblesAcrossFragments(t *testing.T) {
	body := []byte("a longer message body than one frame might carry")
	encoded := Encode(body, false)

	r := NewReassembler()
	defer r.Release()

	mid := len(encoded) / 2
	msgs1, err := r.Feed(encoded[:mid])
	require.NoError(t, err)
	require.Empty(t, msgs1)
	require.True(t, r.Pending())

	msgs2, err := r.Feed(encoded[mid:])
	require.NoError(t, err)
	require.Equal(t, [][]byte{body}, msgs2)
	require.False(t, r.Pending())
}

func TestMultipleMessagesInOneFragment(t *testing.T) {
	a := Encode([]byte("one"), false)
	b := Encode([]byte("two"), false)

	r := NewReassembler()
	defer r.Release()

	msgs, err := r.Feed(append(a, b...))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, msgs)
}
