package h2

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/domsolutions/grpccore/internal/frame"
	"github.com/domsolutions/grpccore/internal/headerwire"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	clientNC, serverNC := net.Pipe()

	type res struct {
		c   *Conn
		err error
	}
	clientCh := make(chan res, 1)
	serverCh := make(chan res, 1)

	go func() {
		c, err := newConn(clientNC, true, 100)
		clientCh <- res{c, err}
	}()
	go func() {
		c, err := newConn(serverNC, false, 100)
		serverCh <- res{c, err}
	}()

	cr := <-clientCh
	require.NoError(t, cr.err)
	sr := <-serverCh
	require.NoError(t, sr.err)

	return cr.c, sr.c
}

func TestHandshakeAndUnaryEcho(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	clientStream, err := client.OpenStream()
	require.NoError(t, err)
	require.Equal(t, uint64(1), clientStream.ID())

	reqHeaders := headerwire.Encode([]headerwire.Header{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/Echo/Do"},
	})
	require.NoError(t, clientStream.WriteFrame(frame.TypeHeaders, 0, reqHeaders))
	require.NoError(t, clientStream.WriteFrame(frame.TypeData, frame.FlagEndStream, []byte("Hi")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverStream, err := server.AcceptStream(ctx)
	require.NoError(t, err)

	hfr, err := serverStream.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, frame.TypeHeaders, hfr.Type)
	got := headerwire.Decode(hfr.Data)
	require.Equal(t, "/Echo/Do", headerwire.Map(got)[":path"])

	dfr, err := serverStream.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, frame.TypeData, dfr.Type)
	require.Equal(t, []byte("Hi"), dfr.Data)
	require.True(t, dfr.Flags.Has(frame.FlagEndStream))

	respHeaders := headerwire.Encode([]headerwire.Header{{Name: ":status", Value: "200"}})
	require.NoError(t, serverStream.WriteFrame(frame.TypeHeaders, 0, respHeaders))
	require.NoError(t, serverStream.WriteFrame(frame.TypeData, frame.FlagEndStream, []byte("Hi")))

	respHfr, err := clientStream.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, frame.TypeHeaders, respHfr.Type)

	respDfr, err := clientStream.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("Hi"), respDfr.Data)
}

func TestClientStreamIDsAreOddAndIncreaseByTwo(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	var ids []uint64
	for i := 0; i < 3; i++ {
		s, err := client.OpenStream()
		require.NoError(t, err)
		ids = append(ids, s.ID())
	}
	require.Equal(t, []uint64{1, 3, 5}, ids)
}

func TestPingRoundTrip(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx))
}
