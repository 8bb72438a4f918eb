package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/domsolutions/grpccore/client"
	"github.com/domsolutions/grpccore/internal/h2"
)

// startServer launches a Server over internal/h2 on a loopback port and
// returns it plus its bound address and a teardown func. Mirrors the
// teacher's table-of-cases pattern of launching one listener per test in
// internal/contracttest/contracttest.go, but driven through the public
// server.Server/client.Client APIs per spec §8's end-to-end scenarios.
func startServer(t *testing.T, cfg Config) (*Server, string, func()) {
	t.Helper()

	l, err := h2.Listen("127.0.0.1:0", nil, 100)
	require.NoError(t, err)

	srv := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, l)
	}()

	addr := l.Addr()
	stop := func() {
		srv.Stop()
		cancel()
		<-done
	}
	return srv, addr, stop
}

func dialClient(t *testing.T, ctx context.Context, addr string) *client.Client {
	t.Helper()
	cl := client.New(&h2.Transport{MaxConcurrentStreams: 100}, client.Config{Endpoint: addr})
	require.NoError(t, cl.Connect(ctx))
	return cl
}

func TestUnaryEcho(t *testing.T) {
	srv, addr, stop := startServer(t, Config{})
	defer stop()

	srv.RegisterHandler("/Echo/Do", func(rc *RequestContext, body []byte) ([]byte, error) {
		return body, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cl := dialClient(t, ctx, addr)
	defer cl.Disconnect()

	resp, err := cl.Call(ctx, "/Echo/Do", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), resp)
}

func TestUnimplementedMethod(t *testing.T) {
	_, addr, stop := startServer(t, Config{})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cl := dialClient(t, ctx, addr)
	defer cl.Disconnect()

	_, err := cl.Call(ctx, "/Nope/Do", []byte("x"))
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Unimplemented, st.Code())
}

func TestDeadlineExceeded(t *testing.T) {
	srv, addr, stop := startServer(t, Config{})
	defer stop()

	released := make(chan struct{})
	srv.RegisterHandler("/Slow/Do", func(rc *RequestContext, body []byte) ([]byte, error) {
		select {
		case <-rc.Done():
			return nil, rc.Err()
		case <-released:
			return body, nil
		}
	})
	defer close(released)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	cl := dialClient(t, dialCtx, addr)
	defer cl.Disconnect()

	callCtx, callCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer callCancel()

	_, err := cl.Call(callCtx, "/Slow/Do", []byte("x"))
	require.Error(t, err)
}

func TestConcurrentMultiplexing(t *testing.T) {
	srv, addr, stop := startServer(t, Config{})
	defer stop()

	srv.RegisterHandler("/Echo/Do", func(rc *RequestContext, body []byte) ([]byte, error) {
		return body, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cl := dialClient(t, ctx, addr)
	defer cl.Disconnect()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := cl.Call(ctx, "/Echo/Do", []byte{byte(i)})
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoErrorf(t, err, "call %d", i)
	}
}

func TestGracefulShutdownStopsNewAccepts(t *testing.T) {
	l, err := h2.Listen("127.0.0.1:0", nil, 100)
	require.NoError(t, err)

	srv := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, l)
	}()

	addr := l.Addr()
	transport := &h2.Transport{MaxConcurrentStreams: 100}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	for i := 0; i < 3; i++ {
		conn, err := transport.Connect(dialCtx, addr, nil)
		require.NoError(t, err)
		conn.Close()
	}

	srv.Stop()
	<-done

	// Spec §8 E2E scenario 5: after Stop, no further connection can be
	// accepted; the listener is already closed so the dial itself fails.
	_, err = transport.Connect(dialCtx, addr, nil)
	require.Error(t, err)
}
