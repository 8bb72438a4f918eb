package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/domsolutions/grpccore/internal/h2"
	"github.com/domsolutions/grpccore/server"
)

// startEchoServer launches a server.Server over internal/h2 with an Echo
// handler and returns its address plus a teardown func, the same harness
// shape server/server_test.go uses but exercising the Client side of the
// same public APIs (spec §8).
func startEchoServer(t *testing.T) (string, func()) {
	t.Helper()

	l, err := h2.Listen("127.0.0.1:0", nil, 100)
	require.NoError(t, err)

	srv := server.New(server.Config{})
	srv.RegisterHandler("/Echo/Do", func(rc *server.RequestContext, body []byte) ([]byte, error) {
		return body, nil
	})

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
	return addr, stop
}

func TestClientCallRoundTrip(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cl := New(&h2.Transport{MaxConcurrentStreams: 100}, Config{Endpoint: addr})
	require.NoError(t, cl.Connect(ctx))
	defer cl.Disconnect()

	resp, err := cl.Call(ctx, "/Echo/Do", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), resp)
}

func TestClientCallUnimplemented(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cl := New(&h2.Transport{MaxConcurrentStreams: 100}, Config{Endpoint: addr})
	require.NoError(t, cl.Connect(ctx))
	defer cl.Disconnect()

	_, err := cl.Call(ctx, "/Missing/Do", []byte("x"))
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Unimplemented, st.Code())
}

// TestClientTracksCallStateByStreamID exercises CallState directly: while
// a call is outstanding, Client.calls must hold exactly one entry keyed by
// the stream id the call is running on (stream 1, the connection's first
// client-initiated HTTP/2 stream) (spec §3 "FULL: DATA MODEL"
// CallState, spec §4.7), and the entry must be gone once the call returns.
func TestClientTracksCallStateByStreamID(t *testing.T) {
	release := make(chan struct{})
	l, err := h2.Listen("127.0.0.1:0", nil, 100)
	require.NoError(t, err)

	srv := server.New(server.Config{})
	srv.RegisterHandler("/Slow/Do", func(rc *server.RequestContext, body []byte) ([]byte, error) {
		<-release
		return body, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, l)
	}()
	defer func() {
		close(release)
		srv.Stop()
		cancel()
		<-done
	}()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()

	cl := New(&h2.Transport{MaxConcurrentStreams: 100}, Config{Endpoint: l.Addr()})
	require.NoError(t, cl.Connect(callCtx))
	defer cl.Disconnect()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = cl.Call(callCtx, "/Slow/Do", []byte("x"))
	}()

	require.Eventually(t, func() bool {
		cl.callsMu.Lock()
		defer cl.callsMu.Unlock()
		_, onFirstStream := cl.calls[1]
		return len(cl.calls) == 1 && onFirstStream
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	release = make(chan struct{}) // avoid double-close from the deferred cleanup
	wg.Wait()

	require.Eventually(t, func() bool {
		cl.callsMu.Lock()
		defer cl.callsMu.Unlock()
		return len(cl.calls) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientCallDeadlineExceeded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	l, err := h2.Listen("127.0.0.1:0", nil, 100)
	require.NoError(t, err)

	srv := server.New(server.Config{})
	srv.RegisterHandler("/Slow/Do", func(rc *server.RequestContext, body []byte) ([]byte, error) {
		select {
		case <-rc.Done():
			return nil, rc.Err()
		case <-release:
			return body, nil
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, l)
	}()
	defer func() {
		srv.Stop()
		cancel()
		<-done
	}()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()

	cl := New(&h2.Transport{MaxConcurrentStreams: 100}, Config{Endpoint: l.Addr()})
	require.NoError(t, cl.Connect(dialCtx))
	defer cl.Disconnect()

	callCtx, callCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer callCancel()

	_, err = cl.Call(callCtx, "/Slow/Do", []byte("x"))
	require.Error(t, err)
}
