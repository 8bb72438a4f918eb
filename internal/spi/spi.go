// Package spi defines the transport Service-Provider Interface: the
// polymorphic capability set that every wire-protocol adapter (HTTP/2,
// HTTP/3, or a test mock) must satisfy so the RPC server and client can
// stay generic over the underlying protocol.
//
// Implementations are tagged variants (internal/h2, internal/h3); core
// code (server, client) is written entirely against these interfaces.
package spi

import (
	"context"
	"crypto/tls"

	"github.com/domsolutions/grpccore/internal/frame"
)

// Transport dials or listens for connections over a specific wire protocol.
type Transport interface {
	// Connect establishes a connection to endpoint. Fails with
	// ErrInvalidArgument for malformed endpoints, ErrNotConnected or
	// ErrTimeout on failure to establish, ErrResourceExhausted when local
	// resource caps are hit.
	Connect(ctx context.Context, endpoint string, tlsConfig *tls.Config) (Connection, error)

	// Listen binds bindAddress and returns a Listener.
	Listen(ctx context.Context, bindAddress string, tlsConfig *tls.Config) (Listener, error)
}

// Connection is a shared, exclusively-owned transport endpoint. Streams
// opened from a Connection hold a non-owning reference to it: they never
// extend its lifetime past a graceful drain.
type Connection interface {
	// OpenStream allocates a fresh stream with adapter-appropriate stream-id
	// arithmetic. Fails with ErrResourceExhausted once the negotiated
	// max-concurrent-streams cap is hit.
	OpenStream() (Stream, error)

	// Close tears the connection and every stream on it down.
	Close() error

	// Ping round-trips a liveness probe to the peer.
	Ping(ctx context.Context) error

	// IsConnected reports whether the connection is still usable.
	IsConnected() bool

	// RemoteAddr returns the string form of the peer address, for logging.
	RemoteAddr() string
}

// Stream is a bidirectional, ordered sequence of frames. No two concurrent
// RPCs may share a Stream.
type Stream interface {
	// ID returns the stream's monotonically increasing identifier.
	ID() uint64

	// WriteFrame writes one frame to the peer. Fails with ErrClosed,
	// ErrCanceled, or ErrTimeout.
	WriteFrame(ft frame.Type, flags frame.Flags, data []byte) error

	// ReadFrame blocks until a frame arrives or the stream ends/resets.
	ReadFrame(ctx context.Context) (*frame.Frame, error)

	// Close half-closes the local side of the stream (analogous to
	// sending END_STREAM without a reset).
	Close() error

	// Cancel maps to the adapter's abrupt-termination primitive
	// (RST_STREAM for HTTP/2, STOP_SENDING+RESET_STREAM for HTTP/3).
	Cancel() error
}

// StreamAcceptor is implemented by server-side Connections: it surfaces
// streams the peer opened, the dual of Connection.OpenStream on the
// client side. The RPC server type-asserts for it after Listener.Accept.
type StreamAcceptor interface {
	AcceptStream(ctx context.Context) (Stream, error)
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks for the next connection. Fails with ErrTimeout (retry)
	// or ErrClosed (shutdown).
	Accept(ctx context.Context) (Connection, error)

	// Close stops accepting new connections.
	Close() error

	// Addr returns the string form of the bound address.
	Addr() string
}
