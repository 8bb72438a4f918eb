package h3

import (
	"bufio"
	"context"
	"errors"

	"github.com/quic-go/quic-go"
)

var ErrControlStreamBadFirstFrame = errors.New("h3: first frame on control stream was not SETTINGS")

// Unidirectional stream type identifiers (RFC 9114 §6.2). This adapter
// only ever opens/reads the control stream: with no dynamic QPACK table
// there is nothing for the encoder/decoder streams to carry, so they are
// never created (spec §4.4's static-table-only profile).
const (
	uniStreamControl = 0x00
)

// openControlStream opens qc's single unidirectional control stream and
// immediately sends an empty SETTINGS frame, which RFC 9114 §6.2.1
// requires be the very first frame on it.
func openControlStream(ctx context.Context, qc quic.Connection) (quic.SendStream, error) {
	us, err := qc.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, mapQUICErr(err)
	}
	hdr := AppendVarInt(nil, uniStreamControl)
	hdr = AppendFrame(hdr, FrameSettings, nil)
	if _, err := us.Write(hdr); err != nil {
		return nil, mapQUICErr(err)
	}
	return us, nil
}

// acceptControlStream blocks for the peer's control stream, validates that
// its first frame is SETTINGS per RFC 9114 §6.2.1, and returns a reader
// positioned right after that first frame so the caller can keep
// monitoring it for GOAWAY (spec §4.6) and later frames.
func acceptControlStream(ctx context.Context, qc quic.Connection) (*bufio.Reader, error) {
	for {
		rs, err := qc.AcceptUniStream(ctx)
		if err != nil {
			return nil, mapQUICErr(err)
		}
		br := bufio.NewReader(rs)
		typ, err := ReadVarInt(br)
		if err != nil {
			continue
		}
		if typ != uniStreamControl {
			continue // push/QPACK streams: not used by this adapter, ignored
		}
		fr, err := ReadFrame(br)
		if err != nil {
			return nil, mapQUICErr(err)
		}
		if fr.Type != FrameSettings {
			return nil, ErrControlStreamBadFirstFrame
		}
		return br, nil
	}
}
