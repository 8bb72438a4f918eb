package h2

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// frameHeader is the 9-byte HTTP/2 frame header plus its payload. Pooled
// the way the teacher's FrameHeader/frameHeaderPool is, since one is
// allocated per frame read or written.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
type frameHeader struct {
	length   int
	kind     FrameType
	flags    Flags
	streamID uint32
	payload  []byte
}

var frameHeaderPool = sync.Pool{
	New: func() interface{} { return &frameHeader{} },
}

func acquireFrameHeader() *frameHeader {
	fh := frameHeaderPool.Get().(*frameHeader)
	fh.reset()
	return fh
}

func releaseFrameHeader(fh *frameHeader) {
	frameHeaderPool.Put(fh)
}

func (fh *frameHeader) reset() {
	fh.length = 0
	fh.kind = 0
	fh.flags = 0
	fh.streamID = 0
	fh.payload = fh.payload[:0]
}

// readFrameHeader reads one frame header + payload off br, rejecting frame
// types outside 0–9 and enforcing maxFrameSize and the stream-id=0
// DATA/HEADERS rule (spec §4.3).
func readFrameHeader(br *bufio.Reader, maxFrameSize uint32) (*frameHeader, error) {
	header := make([]byte, FrameHeaderLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, err
	}

	fh := acquireFrameHeader()
	fh.length = int(bytesToUint24(header[:3]))
	fh.kind = FrameType(header[3])
	fh.flags = Flags(header[4])
	fh.streamID = bytesToUint32(header[5:]) & (1<<31 - 1)

	if fh.kind > maxKnownFrameType {
		kind := fh.kind
		releaseFrameHeader(fh)
		return nil, fmt.Errorf("h2: unknown frame type 0x%x: %w", uint8(kind), ErrProtocol)
	}

	if maxFrameSize > 0 && uint32(fh.length) > maxFrameSize {
		releaseFrameHeader(fh)
		return nil, fmt.Errorf("h2: frame length %d exceeds max_frame_size %d: %w", fh.length, maxFrameSize, ErrProtocol)
	}

	if (fh.kind == FrameData || fh.kind == FrameHeaders) && fh.streamID == 0 {
		releaseFrameHeader(fh)
		return nil, fmt.Errorf("h2: %s on stream 0: %w", frameTypeName(fh.kind), ErrProtocol)
	}

	if fh.length > 0 {
		fh.payload = resize(fh.payload, fh.length)
		if _, err := io.ReadFull(br, fh.payload); err != nil {
			releaseFrameHeader(fh)
			return nil, err
		}
	}

	return fh, nil
}

// writeFrameHeader serializes fh to bw.
func writeFrameHeader(bw *bufio.Writer, fh *frameHeader) error {
	var raw [FrameHeaderLen]byte
	uint24ToBytes(raw[:3], uint32(len(fh.payload)))
	raw[3] = byte(fh.kind)
	raw[4] = byte(fh.flags)
	uint32ToBytes(raw[5:], fh.streamID&(1<<31-1))

	if _, err := bw.Write(raw[:]); err != nil {
		return err
	}
	if len(fh.payload) > 0 {
		if _, err := bw.Write(fh.payload); err != nil {
			return err
		}
	}
	return nil
}

func resize(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}

func frameTypeName(t FrameType) string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	}
	return "UNKNOWN"
}
