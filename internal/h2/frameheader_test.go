package h2

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	fh := acquireFrameHeader()
	fh.kind = FrameHeaders
	fh.flags = fh.flags.Add(FlagEndStream)
	fh.streamID = 3
	fh.payload = []byte("hello")
	fh.length = len(fh.payload)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	require.NoError(t, writeFrameHeader(bw, fh))
	require.NoError(t, bw.Flush())
	releaseFrameHeader(fh)

	br := bufio.NewReader(&buf)
	got, err := readFrameHeader(br, 0)
	require.NoError(t, err)
	require.Equal(t, FrameHeaders, got.kind)
	require.Equal(t, uint32(3), got.streamID)
	require.Equal(t, []byte("hello"), got.payload)
	require.True(t, got.flags.Has(FlagEndStream))
}

func TestFrameHeaderRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, FrameHeaderLen)
	uint24ToBytes(header[:3], 1<<14+1)
	header[3] = byte(FrameData)
	header[5] = 0
	header[6] = 0
	header[7] = 0
	header[8] = 1
	buf.Write(header)
	buf.Write(make([]byte, 1<<14+1))

	br := bufio.NewReader(&buf)
	_, err := readFrameHeader(br, DefaultMaxFrameSize)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestFrameHeaderRejectsDataOnStreamZero(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, FrameHeaderLen)
	uint24ToBytes(header[:3], 0)
	header[3] = byte(FrameData)
	buf.Write(header)

	br := bufio.NewReader(&buf)
	_, err := readFrameHeader(br, 0)
	require.ErrorIs(t, err, ErrProtocol)
}
