// Package client implements the RPC client (C7): connection lifecycle,
// per-call stream allocation, request header construction, and response
// reassembly, symmetric to package server and written entirely against
// internal/spi. Grounded on the teacher's client.go connection/request
// lifecycle, generalized from raw HTTP request/response to gRPC calls.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/grpcframe"
	"github.com/domsolutions/grpccore/internal/headerwire"
	"github.com/domsolutions/grpccore/internal/rpcstatus"
	"github.com/domsolutions/grpccore/internal/spi"
)

// Config configures a Client's connection and default per-call metadata.
type Config struct {
	Endpoint      string
	TLSConfig     *tls.Config
	Authority     string            // :authority; defaults to Endpoint
	StaticHeaders map[string]string // e.g. auth tokens, sent on every call
}

// CallState is the per-outstanding-call bookkeeping entry keyed by the
// stream's id in Client.calls (spec §3 "FULL: DATA MODEL" CallState,
// spec §4.7): resultCh carries the eventual callResult, deadline is the
// call's derived expiry, and cancel releases the context.WithTimeout (or
// WithCancel) backing it. Grounded on internal/h2.Conn's pingPending
// map (conn.go): a mutex-guarded map from a wire-level id to a small
// per-pending-operation struct.
type CallState struct {
	resultCh chan callResult
	deadline time.Time
	cancel   context.CancelFunc
}

// Client owns one transport connection and issues calls over it. A
// Client is safe for concurrent use by multiple goroutines (spec §4.7
// "Concurrent calls").
type Client struct {
	transport spi.Transport
	cfg       Config

	mu   sync.RWMutex
	conn spi.Connection

	callsMu sync.Mutex
	calls   map[uint64]*CallState
}

// New constructs a Client bound to transport (an *h2.Transport or
// *h3.Transport) but does not dial yet; call Connect to establish the
// connection (spec §4.7 "init/connect/disconnect/deinit").
func New(transport spi.Transport, cfg Config) *Client {
	return &Client{transport: transport, cfg: cfg, calls: make(map[uint64]*CallState)}
}

// Connect dials the configured endpoint.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.transport.Connect(ctx, c.cfg.Endpoint, c.cfg.TLSConfig)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Disconnect tears the connection down; the Client may be reconnected
// afterwards with Connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) activeConn() (spi.Connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || !c.conn.IsConnected() {
		return nil, spi.ErrNotConnected
	}
	return c.conn, nil
}

// Call issues a unary RPC against method (e.g. "/Echo/Do") with body as
// the request message, blocking until a response or error (spec §4.7
// "call/callWithTimeout").
func (c *Client) Call(ctx context.Context, method string, body []byte) ([]byte, error) {
	conn, err := c.activeConn()
	if err != nil {
		return nil, err
	}

	st, err := conn.OpenStream()
	if err != nil {
		return nil, err
	}

	authority := c.cfg.Authority
	if authority == "" {
		authority = c.cfg.Endpoint
	}

	headers := []headerwire.Header{
		{Name: ":method", Value: "POST"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: method},
		{Name: ":authority", Value: authority},
		{Name: "content-type", Value: "application/grpc"},
		{Name: "grpc-encoding", Value: "identity"},
	}
	if d, ok := ctx.Deadline(); ok {
		headers = append(headers, headerwire.Header{Name: "grpc-timeout", Value: encodeTimeout(time.Until(d))})
	}
	for k, v := range c.cfg.StaticHeaders {
		headers = append(headers, headerwire.Header{Name: k, Value: v})
	}

	if err := st.WriteFrame(frame.TypeHeaders, 0, headerwire.Encode(headers)); err != nil {
		return nil, err
	}
	if err := st.WriteFrame(frame.TypeData, frame.FlagEndStream, grpcframe.Encode(body, false)); err != nil {
		st.Cancel()
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	deadline, _ := callCtx.Deadline()
	cs := &CallState{
		resultCh: make(chan callResult, 1),
		deadline: deadline,
		cancel:   cancel,
	}
	c.trackCall(st.ID(), cs)
	defer c.untrackCall(st.ID())

	go c.readResponse(st, cs.resultCh)

	select {
	case r := <-cs.resultCh:
		return r.body, r.err
	case <-callCtx.Done():
		st.Cancel()
		return nil, rpcstatus.New(codes.DeadlineExceeded, ctx.Err().Error())
	}
}

// trackCall registers an outstanding call's state keyed by its stream id
// (spec §4.7), letting future work (cancellation lookup, diagnostics)
// find a call by the stream that carries it rather than only by the
// goroutine stack running Call.
func (c *Client) trackCall(streamID uint64, cs *CallState) {
	c.callsMu.Lock()
	c.calls[streamID] = cs
	c.callsMu.Unlock()
}

func (c *Client) untrackCall(streamID uint64) {
	c.callsMu.Lock()
	cs, ok := c.calls[streamID]
	delete(c.calls, streamID)
	c.callsMu.Unlock()
	if ok {
		cs.cancel()
	}
}

type callResult struct {
	body []byte
	err  error
}

func (c *Client) readResponse(st spi.Stream, out chan<- callResult) {
	ctx := context.Background()

	hf, err := st.ReadFrame(ctx)
	if err != nil {
		out <- callResult{nil, mapTransportErr(err)}
		return
	}
	respHeaders := headerwire.Map(headerwire.Decode(hf.Data))
	frame.Release(hf)
	if statusStr, ok := respHeaders["grpc-status"]; ok {
		// Trailer-only response (spec §4.6): the handler failed before
		// any message could be produced.
		code, _ := strconv.Atoi(statusStr)
		out <- callResult{nil, rpcstatus.ErrFromTrailer(codes.Code(code), respHeaders["grpc-message"])}
		return
	}

	reassembler := grpcframe.NewReassembler()
	defer reassembler.Release()

	for {
		df, err := st.ReadFrame(ctx)
		if err != nil {
			out <- callResult{nil, mapTransportErr(err)}
			return
		}

		if df.Type == frame.TypeHeaders {
			// Trailer-only or trailing HEADERS (spec §4.6 step 4): extract
			// grpc-status/grpc-message and conclude the call.
			trailer := headerwire.Map(headerwire.Decode(df.Data))
			frame.Release(df)
			code, _ := strconv.Atoi(trailer["grpc-status"])
			out <- callResult{nil, rpcstatus.ErrFromTrailer(codes.Code(code), trailer["grpc-message"])}
			return
		}

		msgs, err := reassembler.Feed(df.Data)
		ended := df.Flags.Has(frame.FlagEndStream)
		frame.Release(df)
		if err != nil {
			out <- callResult{nil, rpcstatus.Invalid(err.Error())}
			return
		}
		if len(msgs) > 0 {
			body := msgs[0]
			// Drain the trailer HEADERS that must still follow.
			go c.drainTrailerOnly(st, body, out)
			return
		}
		if ended {
			out <- callResult{nil, rpcstatus.Invalid(grpcframe.ErrIncompleteMessage.Error())}
			return
		}
	}
}

// drainTrailerOnly reads the terminal trailer HEADERS that follows a
// successfully reassembled response message before resolving the call.
func (c *Client) drainTrailerOnly(st spi.Stream, body []byte, out chan<- callResult) {
	ctx := context.Background()
	for {
		df, err := st.ReadFrame(ctx)
		if err != nil {
			out <- callResult{body, nil} // peer closed without trailer: tolerate as OK
			return
		}
		if df.Type != frame.TypeHeaders {
			frame.Release(df)
			continue
		}
		trailer := headerwire.Map(headerwire.Decode(df.Data))
		frame.Release(df)
		code, _ := strconv.Atoi(trailer["grpc-status"])
		if err := rpcstatus.ErrFromTrailer(codes.Code(code), trailer["grpc-message"]); err != nil {
			out <- callResult{nil, err}
			return
		}
		out <- callResult{body, nil}
		return
	}
}

func mapTransportErr(err error) error {
	switch {
	case err == context.DeadlineExceeded:
		return rpcstatus.New(codes.DeadlineExceeded, err.Error())
	case err == context.Canceled:
		return rpcstatus.New(codes.Canceled, err.Error())
	default:
		return rpcstatus.New(codes.Unavailable, fmt.Sprintf("transport error: %v", err))
	}
}

// encodeTimeout renders d as a grpc-timeout header value (spec §4.5):
// the largest unit that divides d exactly with a numeric part of at most
// 8 digits; when no unit does, d is truncated to the finest unit whose
// count fits in 8 digits.
func encodeTimeout(d time.Duration) string {
	if d <= 0 {
		d = time.Millisecond
	}
	switch {
	case d%time.Hour == 0 && d/time.Hour < 1e8:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "H"
	case d%time.Minute == 0 && d/time.Minute < 1e8:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "M"
	case d%time.Second == 0 && d/time.Second < 1e8:
		return strconv.FormatInt(int64(d/time.Second), 10) + "S"
	case d%time.Millisecond == 0 && d/time.Millisecond < 1e8:
		return strconv.FormatInt(int64(d/time.Millisecond), 10) + "m"
	case d/time.Microsecond < 1e8:
		return strconv.FormatInt(int64(d/time.Microsecond), 10) + "u"
	case d/time.Millisecond < 1e8:
		return strconv.FormatInt(int64(d/time.Millisecond), 10) + "m"
	case d/time.Second < 1e8:
		return strconv.FormatInt(int64(d/time.Second), 10) + "S"
	case d/time.Minute < 1e8:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "M"
	default:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "H"
	}
}
