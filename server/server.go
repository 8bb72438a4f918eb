// Package server implements the RPC server (C6): a handler registry, an
// admission-controlled accept loop, and a per-stream request/response
// pipeline built entirely against internal/spi so it runs unmodified over
// HTTP/2 or HTTP/3. Grounded on the teacher's server.go/serverConn.go
// accept-and-serve shape, generalized from raw HTTP semantics to gRPC
// unary call dispatch.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/grpcframe"
	"github.com/domsolutions/grpccore/internal/headerwire"
	"github.com/domsolutions/grpccore/internal/ratelimit"
	"github.com/domsolutions/grpccore/internal/rpcstatus"
	"github.com/domsolutions/grpccore/internal/spi"
)

// goAwayer is implemented by internal/h2.Conn and internal/h3.Conn alike:
// it lets Stop signal every live connection to drain without this package
// importing either adapter directly (spec §4.6 "(b) existing connections
// are signaled to send GOAWAY").
type goAwayer interface {
	GoAway() error
}

// Handler processes one decoded request message and returns the response
// message, or an error to be translated into a gRPC status trailer (spec
// §7's propagation policy).
type Handler func(ctx *RequestContext, body []byte) ([]byte, error)

// RequestContext carries per-call metadata and the deadline derived from
// an incoming grpc-timeout header (spec §4.5 "grpc-timeout").
type RequestContext struct {
	context.Context
	Method  string
	Headers map[string]string
}

// Config configures admission control and resource caps for Serve.
type Config struct {
	TLSConfig                   *tls.Config
	MaxConcurrentConns          int
	RateLimitBurst              int
	RateLimitRefillPerSec       float64
	MaxConcurrentStreamsPerConn uint32
}

// Server dispatches accepted connections' streams to registered handlers.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	cfg     Config
	limiter *ratelimit.TokenBucket

	connSemaphore chan struct{}

	wg sync.WaitGroup

	listenerMu sync.Mutex
	listener   spi.Listener

	connsMu sync.Mutex
	conns   map[spi.Connection]struct{}

	shuttingDown bool
	shutdownMu   sync.Mutex
}

// New returns a Server configured per cfg. A nil or zero RateLimitBurst
// disables admission rate limiting.
func New(cfg Config) *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		conns:    make(map[spi.Connection]struct{}),
		cfg:      cfg,
	}
	if cfg.RateLimitBurst > 0 {
		s.limiter = ratelimit.New(cfg.RateLimitBurst, cfg.RateLimitRefillPerSec)
	}
	if cfg.MaxConcurrentConns > 0 {
		s.connSemaphore = make(chan struct{}, cfg.MaxConcurrentConns)
	}
	return s
}

// RegisterHandler binds methodPath (e.g. "/Echo/Do") to fn (spec §6
// "registerHandler(method_path, fn)").
func (s *Server) RegisterHandler(methodPath string, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[methodPath] = fn
}

func (s *Server) lookup(methodPath string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[methodPath]
	return h, ok
}

// Methods returns every registered method path, for the operational
// fasthttp2 bridge's /debug/methods endpoint.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	return out
}

// Serve runs the accept loop against l until ctx is canceled or Stop is
// called. Stop closes l itself, so the blocking Accept call below returns
// promptly once a drain is signaled instead of the loop having to poll a
// flag around it (spec §4.6 "(a) listener is closed so no further
// accepts", spec §3 "after graceful shutdown is signaled, no new streams
// are accepted").
func (s *Server) Serve(ctx context.Context, l spi.Listener) error {
	s.listenerMu.Lock()
	s.listener = l
	s.listenerMu.Unlock()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if errors.Is(err, spi.ErrClosed) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			continue
		}

		// Admission control runs after the transport handshake completes
		// (spec §4.6: the connection is accepted, then closed without
		// being served if it's refused), not by spinning ahead of Accept.
		if s.limiter != nil && !s.limiter.Allow() {
			conn.Close()
			continue
		}

		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			default:
				conn.Close()
				continue
			}
		}

		s.trackConn(conn)
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) trackConn(conn spi.Connection) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn spi.Connection) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) serveConn(ctx context.Context, conn spi.Connection) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.untrackConn(conn)
	if s.connSemaphore != nil {
		defer func() { <-s.connSemaphore }()
	}

	acceptor, ok := conn.(spi.StreamAcceptor)
	if !ok {
		return
	}

	// Caps the number of streams of this one connection being served
	// concurrently (spec §6 "max_concurrent_streams_per_connection"); a
	// nil channel (cap disabled) makes every send/receive on it block
	// forever, so callers must check streamSem != nil before using it.
	var streamSem chan struct{}
	if s.cfg.MaxConcurrentStreamsPerConn > 0 {
		streamSem = make(chan struct{}, s.cfg.MaxConcurrentStreamsPerConn)
	}

	for {
		s.shutdownMu.Lock()
		draining := s.shuttingDown
		s.shutdownMu.Unlock()
		if draining {
			return
		}

		if streamSem != nil {
			streamSem <- struct{}{}
		}

		st, err := acceptor.AcceptStream(ctx)
		if err != nil {
			if streamSem != nil {
				<-streamSem
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if streamSem != nil {
				defer func() { <-streamSem }()
			}
			s.serveStream(ctx, st)
		}()
	}
}

// serveStream runs one stream through header-gather, body reassembly,
// dispatch, and response (spec §4.6 "Per-stream request/response cycle").
func (s *Server) serveStream(ctx context.Context, st spi.Stream) {
	hf, err := st.ReadFrame(ctx)
	if err != nil || hf.Type != frame.TypeHeaders {
		st.Cancel()
		return
	}
	headers := headerwire.Map(headerwire.Decode(hf.Data))
	method := headers[":path"]
	defer frame.Release(hf)

	reqCtx, cancel := s.deadlineFromHeaders(ctx, headers)
	defer cancel()

	handler, ok := s.lookup(method)
	if !ok {
		s.writeTrailerOnly(st, rpcstatus.Unimplemented(method))
		return
	}

	body, err := s.readMessage(reqCtx, st, hf)
	if err != nil {
		s.writeTrailerOnly(st, err)
		return
	}

	respBody, handlerErr := handler(&RequestContext{Context: reqCtx, Method: method, Headers: headers}, body)
	if handlerErr != nil {
		s.writeTrailerOnly(st, handlerErr)
		return
	}

	if err := st.WriteFrame(frame.TypeHeaders, 0, headerwire.Encode([]headerwire.Header{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "application/grpc"},
	})); err != nil {
		return
	}
	if err := st.WriteFrame(frame.TypeData, 0, grpcframe.Encode(respBody, false)); err != nil {
		return
	}
	s.writeTrailerOnly(st, nil)
}

// readMessage reassembles one gRPC message from the stream's DATA frames.
// hf is the request's HEADERS frame, already read by the caller; if it
// carried END_STREAM the request has no body.
func (s *Server) readMessage(ctx context.Context, st spi.Stream, hf *frame.Frame) ([]byte, error) {
	reassembler := grpcframe.NewReassembler()
	defer reassembler.Release()

	if hf.Flags.Has(frame.FlagEndStream) {
		return nil, rpcstatus.Invalid("request had no body")
	}

	for {
		df, err := st.ReadFrame(ctx)
		if err != nil {
			return nil, rpcstatus.New(codes.Unavailable, err.Error())
		}
		if df.Type != frame.TypeData {
			continue
		}
		msgs, err := reassembler.Feed(df.Data)
		if err != nil {
			return nil, rpcstatus.Invalid(err.Error())
		}
		ended := df.Flags.Has(frame.FlagEndStream)
		frame.Release(df)
		if len(msgs) > 0 {
			if ended && reassembler.Pending() {
				return nil, rpcstatus.Invalid(grpcframe.ErrIncompleteMessage.Error())
			}
			return msgs[0], nil
		}
		if ended {
			return nil, rpcstatus.Invalid(grpcframe.ErrIncompleteMessage.Error())
		}
	}
}

// writeTrailerOnly sends the terminal HEADERS frame carrying grpc-status
// and grpc-message (spec §4.6 step 4); err == nil maps to OK.
func (s *Server) writeTrailerOnly(st spi.Stream, err error) {
	t := rpcstatus.TrailerFor(err)
	trailer := headerwire.Encode([]headerwire.Header{
		{Name: "grpc-status", Value: strconv.Itoa(int(t.Code))},
		{Name: "grpc-message", Value: t.Message},
	})
	st.WriteFrame(frame.TypeHeaders, frame.FlagEndStream, trailer)
	st.Close()
}

// deadlineFromHeaders parses grpc-timeout (spec §4.5: value + unit suffix
// H/M/S/m/u/n) into a context deadline, falling back to parent's deadline
// (or none) when absent or malformed.
func (s *Server) deadlineFromHeaders(parent context.Context, headers map[string]string) (context.Context, context.CancelFunc) {
	raw, ok := headers["grpc-timeout"]
	if !ok || len(raw) < 2 {
		return context.WithCancel(parent)
	}
	unit := raw[len(raw)-1]
	numPart := raw[:len(raw)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return context.WithCancel(parent)
	}

	var d time.Duration
	switch unit {
	case 'H':
		d = time.Duration(n) * time.Hour
	case 'M':
		d = time.Duration(n) * time.Minute
	case 'S':
		d = time.Duration(n) * time.Second
	case 'm':
		d = time.Duration(n) * time.Millisecond
	case 'u':
		d = time.Duration(n) * time.Microsecond
	case 'n':
		d = time.Duration(n) * time.Nanosecond
	default:
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// Stop begins a graceful drain (spec §4.6 "Graceful shutdown"): (a) the
// listener is closed so Serve's Accept stops admitting new connections,
// (b) every connection already being served is sent a transport-level
// GOAWAY so its peer stops opening new streams on it, and (c) Stop blocks
// until every in-flight stream finishes.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.listenerMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.listenerMu.Unlock()

	s.connsMu.Lock()
	conns := make([]spi.Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		if ga, ok := c.(goAwayer); ok {
			ga.GoAway()
		}
	}

	s.wg.Wait()
}

func methodParts(path string) (service, rpc string) {
	path = strings.TrimPrefix(path, "/")
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}
