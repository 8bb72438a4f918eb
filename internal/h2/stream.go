package h2

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/headerwire"
	"github.com/domsolutions/grpccore/internal/hpack"
)

// streamState implements the state machine of spec §4.3.
type streamState int8

const (
	stateIdle streamState = iota
	stateOpen
	stateHalfClosedLocal
	stateHalfClosedRemote
	stateClosed
)

// stream implements spi.Stream over one HTTP/2 stream id. Grounded on the
// teacher's Stream type (stream.go) for the state enum shape, generalized
// with flow-control windows and a demultiplexed inbound frame queue since
// the teacher's Stream carries no payload channel of its own.
type stream struct {
	id   uint32
	conn *Conn

	mu    sync.Mutex
	state streamState

	sendWindow int32 // atomic, bytes of DATA this side may still send
	recvWindow int32 // atomic, bytes of DATA the peer may still send us

	incoming  chan *frame.Frame
	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

func newStream(id uint32, conn *Conn, initialSendWindow, initialRecvWindow uint32) *stream {
	return &stream{
		id:         id,
		conn:       conn,
		state:      stateIdle,
		sendWindow: int32(initialSendWindow),
		recvWindow: int32(initialRecvWindow),
		incoming:   make(chan *frame.Frame, 256),
		done:       make(chan struct{}),
	}
}

func (s *stream) ID() uint64 { return uint64(s.id) }

func (s *stream) transition(sent bool, endStream bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateIdle:
		s.state = stateOpen
	case stateOpen:
		if endStream {
			if sent {
				s.state = stateHalfClosedLocal
			} else {
				s.state = stateHalfClosedRemote
			}
		}
	case stateHalfClosedLocal:
		if endStream && !sent {
			s.closeLocked(nil)
		}
	case stateHalfClosedRemote:
		if endStream && sent {
			s.closeLocked(nil)
		}
	}
}

func (s *stream) closeLocked(err error) {
	s.state = stateClosed
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.done)
	})
}

func (s *stream) abort(err error) {
	s.mu.Lock()
	s.closeLocked(err)
	s.mu.Unlock()
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}

// WriteFrame maps the adapter-neutral frame.Type onto HTTP/2 wire frames
// and sends it, applying flow control for DATA (spec §4.3 "Flow control").
func (s *stream) WriteFrame(ft frame.Type, flags frame.Flags, data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	switch ft {
	case frame.TypeData:
		return s.writeData(data, flags.Has(frame.FlagEndStream))
	case frame.TypeHeaders, frame.TypeStatus, frame.TypeMetadata:
		return s.writeHeaders(data, flags.Has(frame.FlagEndStream))
	case frame.TypeCancel:
		return s.Cancel()
	case frame.TypePing:
		return s.conn.sendPing()
	}
	return ErrInvalidState
}

// writeHeaders takes a headerwire-encoded header list, HPACK-encodes it,
// and writes it as one HEADERS frame. The adapter never chains
// CONTINUATION frames (Design Notes, Open Questions), so callers must keep
// header lists within max_frame_size.
func (s *stream) writeHeaders(wireBlock []byte, endStream bool) error {
	hdrs := headerwire.Decode(wireBlock)
	fields := make([]hpack.Field, len(hdrs))
	for i, h := range hdrs {
		fields[i] = hpack.Field{Name: h.Name, Value: h.Value}
	}
	encoded := s.conn.enc.EncodeFields(fields)

	fh := buildHeadersFrame(s.id, encoded, endStream, true)
	defer releaseFrameHeader(fh)
	if err := s.conn.writeFrameHeader(fh); err != nil {
		return err
	}
	s.transition(true, endStream)
	return nil
}

func (s *stream) writeData(body []byte, endStream bool) error {
	const chunk = DefaultMaxFrameSize
	for len(body) > 0 || (len(body) == 0 && endStream) {
		n := len(body)
		if n > chunk {
			n = chunk
		}
		if n > 0 {
			if err := s.conn.reserveSendWindow(s, n); err != nil {
				return err
			}
		}
		last := n == len(body)
		fh := buildDataFrame(s.id, body[:n], last && endStream)
		err := s.conn.writeFrameHeader(fh)
		releaseFrameHeader(fh)
		if err != nil {
			return err
		}
		body = body[n:]
		if n == 0 {
			break
		}
	}
	if endStream {
		s.transition(true, true)
	}
	return nil
}

// ReadFrame blocks for the next demultiplexed frame. It returns ctx.Err()
// if ctx ends first; once the stream is closed and its queue is drained it
// returns the error the stream was closed with (ErrCanceled after Cancel,
// ErrConnectionReset after a peer RST_STREAM, the connection's error after
// teardown), or ErrClosed when the stream ended normally.
func (s *stream) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	select {
	case fr, ok := <-s.incoming:
		if !ok {
			s.mu.Lock()
			err := s.closeErr
			s.mu.Unlock()
			if err == nil {
				err = ErrClosed
			}
			return nil, err
		}
		return fr, nil
	case <-s.done:
		select {
		case fr, ok := <-s.incoming:
			if ok {
				return fr, nil
			}
		default:
		}
		s.mu.Lock()
		err := s.closeErr
		s.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stream) Close() error {
	return s.writeData(nil, true)
}

// Cancel issues RST_STREAM, the adapter's mapping of the abrupt-termination
// primitive (spec §4.1).
func (s *stream) Cancel() error {
	fh := acquireFrameHeader()
	fh.kind = FrameRSTStream
	fh.streamID = s.id
	fh.payload = encodeRSTStream(ErrCodeCancel)
	fh.length = len(fh.payload)
	err := s.conn.writeFrameHeader(fh)
	releaseFrameHeader(fh)
	s.abort(ErrCanceled)
	s.conn.forgetStream(s.id)
	return err
}

func (s *stream) deliver(fr *frame.Frame) {
	select {
	case s.incoming <- fr:
	case <-s.done:
	}
}

func (s *stream) addRecvWindow(n int32) int32 {
	return atomic.AddInt32(&s.recvWindow, n)
}

func (s *stream) addSendWindow(n int32) {
	atomic.AddInt32(&s.sendWindow, n)
}
