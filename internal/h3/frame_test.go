package h3

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(AppendFrame(nil, FrameData, []byte("payload")))

	fr, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, FrameData, fr.Type)
	require.Equal(t, []byte("payload"), fr.Payload)
}

func TestUnknownFrameTypeIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(AppendFrame(nil, FrameType(0x99), []byte("x")))
	buf.Write(AppendFrame(nil, FrameData, []byte("y")))

	br := bufio.NewReader(&buf)
	fr, err := ReadFrame(br)
	require.NoError(t, err)
	require.False(t, IsKnownFrameType(fr.Type))

	fr, err = ReadFrame(br)
	require.NoError(t, err)
	require.Equal(t, FrameData, fr.Type)
}
