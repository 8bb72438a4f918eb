package h3

import (
	"bufio"
	"bytes"
	"context"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/domsolutions/grpccore/internal/spi"
)

// Conn implements spi.Connection and (server-side) spi.StreamAcceptor by
// wrapping one quic.Connection. It plays the same role as internal/h2's
// Conn but delegates stream demultiplexing and flow control to quic-go
// itself (spec §1: QUIC is "consumed as an opaque stream provider").
type Conn struct {
	qc       quic.Connection
	isClient bool

	ctrlSend quic.SendStream // this adapter's single control stream (RFC 9114 §6.2.1)

	closed atomic.Bool

	goAwaySent       atomic.Bool
	goAwayReceived   atomic.Bool
	peerLastStreamID atomic.Uint64 // from the peer's GOAWAY, when received

	highestStreamID atomic.Uint64 // highest id we've opened or accepted, for our own GOAWAY

	monitorDone chan struct{}
}

var (
	_ spi.Connection     = (*Conn)(nil)
	_ spi.StreamAcceptor = (*Conn)(nil)
)

func newConn(ctx context.Context, qc quic.Connection, isClient bool) (*Conn, error) {
	c := &Conn{qc: qc, isClient: isClient, monitorDone: make(chan struct{})}

	var peerCtrl *bufio.Reader
	var err error

	if isClient {
		c.ctrlSend, err = openControlStream(ctx, qc)
		if err != nil {
			qc.CloseWithError(0, "control stream setup failed")
			return nil, err
		}
		peerCtrl, err = acceptControlStream(ctx, qc)
		if err != nil {
			qc.CloseWithError(0, "peer control stream invalid")
			return nil, err
		}
	} else {
		peerCtrl, err = acceptControlStream(ctx, qc)
		if err != nil {
			qc.CloseWithError(0, "peer control stream invalid")
			return nil, err
		}
		c.ctrlSend, err = openControlStream(ctx, qc)
		if err != nil {
			qc.CloseWithError(0, "control stream setup failed")
			return nil, err
		}
	}

	go c.monitorControlStream(peerCtrl)

	return c, nil
}

// monitorControlStream persistently reads frames off the peer's control
// stream for the lifetime of the connection, the HTTP/3 analogue of
// internal/h2's readLoop handling of GOAWAY (spec §4.6 "after GOAWAY, no
// new streams accepted" must hold for both adapters alike).
func (c *Conn) monitorControlStream(br *bufio.Reader) {
	defer close(c.monitorDone)
	for {
		fr, err := ReadFrame(br)
		if err != nil {
			return
		}
		switch fr.Type {
		case FrameGoaway:
			id, err := ReadVarInt(bufio.NewReader(bytes.NewReader(fr.Payload)))
			if err == nil {
				c.goAwayReceived.Store(true)
				c.peerLastStreamID.Store(id)
			}
		default:
			// SETTINGS updates, MAX_PUSH_ID, or anything unknown: not
			// acted on by this adapter's core profile.
		}
	}
}

// OpenStream opens a new client-initiated bidirectional QUIC stream and
// wraps it as a request stream (spec §4.4).
func (c *Conn) OpenStream() (spi.Stream, error) {
	if c.closed.Load() {
		return nil, spi.ErrClosed
	}
	if c.goAwayReceived.Load() {
		return nil, spi.ErrClosed
	}
	qs, err := c.qc.OpenStreamSync(context.Background())
	if err != nil {
		return nil, mapQUICErr(err)
	}
	c.trackStreamID(uint64(qs.StreamID()))
	return newStream(qs, c), nil
}

// AcceptStream surfaces the next peer-opened bidirectional stream.
func (c *Conn) AcceptStream(ctx context.Context) (spi.Stream, error) {
	if c.goAwaySent.Load() {
		return nil, spi.ErrClosed
	}
	qs, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, mapQUICErr(err)
	}
	c.trackStreamID(uint64(qs.StreamID()))
	return newStream(qs, c), nil
}

func (c *Conn) trackStreamID(id uint64) {
	for {
		cur := c.highestStreamID.Load()
		if id <= cur || c.highestStreamID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Ping reports liveness using QUIC's own connection context, which the
// transport cancels the moment the connection closes or times out —
// there is no separate application-level probe to send, unlike HTTP/2's
// PING frame, since QUIC's transport-layer keepalive already serves
// that purpose.
func (c *Conn) Ping(ctx context.Context) error {
	select {
	case <-c.qc.Context().Done():
		return spi.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *Conn) IsConnected() bool { return !c.closed.Load() }

func (c *Conn) RemoteAddr() string { return c.qc.RemoteAddr().String() }

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.qc.CloseWithError(0, "")
}

// GoAway sends an HTTP/3 GOAWAY frame on this connection's one control
// stream (RFC 9114 §6.2.1 permits exactly one; a second would be a
// protocol violation), carrying the highest stream id this side has
// opened or accepted so far, refusing new requests above it while
// letting in-flight ones drain (spec §4.6 "Graceful shutdown"). Matches
// internal/h2's Conn.GoAway signature so callers can treat both adapters'
// connections alike.
func (c *Conn) GoAway() error {
	if !c.goAwaySent.CompareAndSwap(false, true) {
		return nil
	}
	lastID := c.highestStreamID.Load()
	payload := AppendFrame(nil, FrameGoaway, AppendVarInt(nil, lastID))
	_, err := c.ctrlSend.Write(payload)
	return mapQUICErr(err)
}
