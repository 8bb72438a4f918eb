package h3

import (
	"bufio"
	"context"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/headerwire"
	"github.com/domsolutions/grpccore/internal/spi"
)

// stream wraps one quic.Stream as an spi.Stream. Unlike internal/h2,
// there is no connection-level read loop to demultiplex: QUIC already
// gives every stream of a quic.Connection its own independent byte
// stream and flow-control window (spec §1's "underlying QUIC datagram
// layer ... consumed as an opaque stream provider"), so blocking a read
// on one stream can never block another the way a shared TCP
// connection would.
type stream struct {
	qs   quic.Stream
	conn *Conn

	br *bufio.Reader

	mu     sync.Mutex
	closed bool
}

var _ spi.Stream = (*stream)(nil)

func newStream(qs quic.Stream, conn *Conn) *stream {
	return &stream{
		qs:   qs,
		conn: conn,
		br:   bufio.NewReader(qs),
	}
}

func (s *stream) ID() uint64 { return uint64(qStreamID(s.qs)) }

// WriteFrame translates one generic transport frame into the matching
// HTTP/3 frame (spec §4.4): frame.TypeHeaders carries a headerwire-encoded
// header block which is re-encoded to a QPACK field section before being
// wrapped in an HTTP/3 HEADERS frame; frame.TypeData maps directly to an
// HTTP/3 DATA frame. END_STREAM has no HTTP/3 frame representation — it
// is signaled by closing the QUIC stream's send side, which WriteFrame
// does itself (via Close) when FlagEndStream is set.
func (s *stream) WriteFrame(ft frame.Type, flags frame.Flags, data []byte) error {
	var out []byte
	switch ft {
	case frame.TypeHeaders:
		fields := EncodeFieldSection(toQPACKFields(headerwire.Decode(data)))
		out = AppendFrame(nil, FrameHeaders, fields)
	case frame.TypeData:
		out = AppendFrame(nil, FrameData, data)
	default:
		return spi.ErrInvalidArgument
	}

	if _, err := s.qs.Write(out); err != nil {
		return mapQUICErr(err)
	}
	if flags.Has(frame.FlagEndStream) {
		return s.Close()
	}
	return nil
}

// ReadFrame reads the next HTTP/3 frame, skipping any of an unrecognized
// type per RFC 9114 §9, and translates it to the generic frame model.
func (s *stream) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	type result struct {
		f   *frame.Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			hf, err := ReadFrame(s.br)
			if err != nil {
				ch <- result{nil, mapQUICErr(err)}
				return
			}
			if !IsKnownFrameType(hf.Type) {
				continue // unknown frame types MUST be ignored (RFC 9114 §9)
			}

			out := frame.Acquire()
			switch hf.Type {
			case FrameHeaders:
				fields, err := DecodeFieldSection(hf.Payload)
				if err != nil {
					ch <- result{nil, ErrQPACKTruncated}
					return
				}
				out.Type = frame.TypeHeaders
				out.Flags = out.Flags.Add(frame.FlagEndHeaders)
				out.Data = headerwire.Encode(fromQPACKFields(fields))
			case FrameData:
				out.Type = frame.TypeData
				out.Data = append(out.Data[:0], hf.Payload...)
			default:
				continue
			}
			ch <- result{out, nil}
			return
		}
	}()

	select {
	case r := <-ch:
		return r.f, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.qs.Close()
}

// Cancel maps to QUIC's abrupt-termination primitives: STOP_SENDING on
// the receive side, RESET_STREAM on the send side (spec §4.4 "Stream
// cancellation").
func (s *stream) Cancel() error {
	s.qs.CancelRead(quic.StreamErrorCode(0))
	s.qs.CancelWrite(quic.StreamErrorCode(0))
	return nil
}

func toQPACKFields(hdrs []headerwire.Header) []Field {
	out := make([]Field, len(hdrs))
	for i, h := range hdrs {
		out[i] = Field{Name: h.Name, Value: h.Value}
	}
	return out
}

func fromQPACKFields(fields []Field) []headerwire.Header {
	out := make([]headerwire.Header, len(fields))
	for i, f := range fields {
		out[i] = headerwire.Header{Name: f.Name, Value: f.Value}
	}
	return out
}

func qStreamID(qs quic.Stream) int64 { return int64(qs.StreamID()) }
