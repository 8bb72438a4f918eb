package h2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/domsolutions/grpccore/internal/contracttest"
	"github.com/domsolutions/grpccore/internal/spi"
)

func TestHTTP2SatisfiesContract(t *testing.T) {
	transport := &Transport{MaxConcurrentStreams: 100}

	contracttest.Run(t, contracttest.Harness{
		Listen: func(t *testing.T, ctx context.Context) (spi.Listener, string) {
			l, err := Listen("127.0.0.1:0", nil, 100)
			require.NoError(t, err)
			return l, l.Addr()
		},
		Dial: func(t *testing.T, ctx context.Context, addr string) spi.Connection {
			conn, err := transport.Connect(ctx, addr, nil)
			require.NoError(t, err)
			return conn
		},
	})
}
