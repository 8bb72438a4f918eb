// Package contracttest is the shared SPI conformance harness (C1): a
// table of behavioral cases that any spi.Transport implementation must
// satisfy, so the RPC core can trust adapters are interchangeable. It is
// run against internal/h2 (internal/h2/contract_test.go); no test in the
// module runs it against internal/h3. Grounded on the teacher's
// h2spec/h2spec_test.go table-of-cases-against-a-launched-server shape,
// generalized from raw HTTP2-conformance assertions to the smaller
// surface internal/spi actually exposes.
package contracttest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/headerwire"
	"github.com/domsolutions/grpccore/internal/spi"
)

// requestHeaders opens a stream on the wire: an HTTP/2 peer only learns of
// a new stream from its HEADERS frame, so every case sends one first.
var requestHeaders = headerwire.Encode([]headerwire.Header{{Name: ":path", Value: "/contract/test"}})

// Harness launches one listener/dialer pair for a transport under test
// and exposes a standard set of conformance cases.
type Harness struct {
	// Dial returns a fresh client Connection bound to Listen's address.
	Dial func(t *testing.T, ctx context.Context, addr string) spi.Connection
	// Listen starts a listener and returns it plus its bound address.
	Listen func(t *testing.T, ctx context.Context) (spi.Listener, string)
}

// Run executes every conformance case against h.
func Run(t *testing.T, h Harness) {
	t.Run("UnaryRoundTrip", func(t *testing.T) { h.testUnaryRoundTrip(t) })
	t.Run("StreamIDsAreUnique", func(t *testing.T) { h.testStreamIDsUnique(t) })
	t.Run("IndependentStreamsDontBlock", func(t *testing.T) { h.testIndependentStreamsDontBlock(t) })
	t.Run("CancelUnblocksReader", func(t *testing.T) { h.testCancelUnblocksReader(t) })
}

func (h Harness) testUnaryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, addr := h.Listen(t, ctx)
	defer l.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := l.Accept(ctx)
		if err != nil {
			return
		}
		defer conn.Close()
		acceptor, ok := conn.(spi.StreamAcceptor)
		require.True(t, ok)
		st, err := acceptor.AcceptStream(ctx)
		require.NoError(t, err)

		hdr, err := st.ReadFrame(ctx)
		require.NoError(t, err)
		require.Equal(t, frame.TypeHeaders, hdr.Type)

		req, err := st.ReadFrame(ctx)
		require.NoError(t, err)
		require.Equal(t, frame.TypeData, req.Type)
		require.NoError(t, st.WriteFrame(frame.TypeData, frame.FlagEndStream, req.Data))
	}()

	conn := h.Dial(t, ctx, addr)
	defer conn.Close()

	st, err := conn.OpenStream()
	require.NoError(t, err)
	require.NoError(t, st.WriteFrame(frame.TypeHeaders, 0, requestHeaders))
	require.NoError(t, st.WriteFrame(frame.TypeData, frame.FlagEndStream, []byte("ping")))

	resp, err := st.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), resp.Data)

	<-serverDone
}

func (h Harness) testStreamIDsUnique(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, addr := h.Listen(t, ctx)
	defer l.Close()
	go func() {
		conn, err := l.Accept(ctx)
		if err != nil {
			return
		}
		defer conn.Close()
		<-ctx.Done()
	}()

	conn := h.Dial(t, ctx, addr)
	defer conn.Close()

	seen := make(map[uint64]bool)
	for i := 0; i < 4; i++ {
		st, err := conn.OpenStream()
		require.NoError(t, err)
		require.False(t, seen[st.ID()], "stream id %d reused", st.ID())
		seen[st.ID()] = true
	}
}

// testIndependentStreamsDontBlock opens two streams, leaves the first one
// unanswered (its request never ends and the server never replies on it),
// and asserts the second can still complete a full round trip — the core
// concurrency invariant a shared connection read loop must uphold.
func (h Harness) testIndependentStreamsDontBlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, addr := h.Listen(t, ctx)
	defer l.Close()

	go func() {
		conn, err := l.Accept(ctx)
		if err != nil {
			return
		}
		defer conn.Close()
		acceptor := conn.(spi.StreamAcceptor)

		first, err := acceptor.AcceptStream(ctx)
		require.NoError(t, err)
		_, _ = first.ReadFrame(ctx) // intentionally never answered

		second, err := acceptor.AcceptStream(ctx)
		require.NoError(t, err)
		hdr, err := second.ReadFrame(ctx)
		require.NoError(t, err)
		require.Equal(t, frame.TypeHeaders, hdr.Type)
		req, err := second.ReadFrame(ctx)
		require.NoError(t, err)
		require.NoError(t, second.WriteFrame(frame.TypeData, frame.FlagEndStream, req.Data))
	}()

	conn := h.Dial(t, ctx, addr)
	defer conn.Close()

	blocked, err := conn.OpenStream()
	require.NoError(t, err)
	require.NoError(t, blocked.WriteFrame(frame.TypeHeaders, 0, requestHeaders))
	require.NoError(t, blocked.WriteFrame(frame.TypeData, 0, []byte("stall")))

	live, err := conn.OpenStream()
	require.NoError(t, err)
	require.NoError(t, live.WriteFrame(frame.TypeHeaders, 0, requestHeaders))
	require.NoError(t, live.WriteFrame(frame.TypeData, frame.FlagEndStream, []byte("go")))

	resp, err := live.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("go"), resp.Data)
}

func (h Harness) testCancelUnblocksReader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, addr := h.Listen(t, ctx)
	defer l.Close()
	go func() {
		conn, err := l.Accept(ctx)
		if err != nil {
			return
		}
		defer conn.Close()
		<-ctx.Done()
	}()

	conn := h.Dial(t, ctx, addr)
	defer conn.Close()

	st, err := conn.OpenStream()
	require.NoError(t, err)
	require.NoError(t, st.Cancel())

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, err = st.ReadFrame(readCtx)
	require.Error(t, err)
}
