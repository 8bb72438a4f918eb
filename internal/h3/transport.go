package h3

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"

	"github.com/domsolutions/grpccore/internal/spi"
)

// Transport implements spi.Transport over QUIC/HTTP3, the sibling of
// internal/h2.Transport (spec §1's adapter-plurality requirement: "the
// same RPC core runs unmodified over either").
type Transport struct{}

var _ spi.Transport = (*Transport)(nil)

func (t *Transport) Connect(ctx context.Context, endpoint string, tlsConfig *tls.Config) (spi.Connection, error) {
	cfg := &tls.Config{}
	if tlsConfig != nil {
		cfg = tlsConfig.Clone()
	}
	cfg.NextProtos = appendIfMissing(cfg.NextProtos, "h3")
	if cfg.ServerName == "" {
		cfg.ServerName = hostOnly(endpoint)
	}

	qc, err := quic.DialAddr(ctx, endpoint, cfg, &quic.Config{})
	if err != nil {
		return nil, mapQUICErr(err)
	}
	return newConn(ctx, qc, true)
}

func (t *Transport) Listen(ctx context.Context, bindAddress string, tlsConfig *tls.Config) (spi.Listener, error) {
	return Listen(bindAddress, tlsConfig)
}

func hostOnly(endpoint string) string {
	for i := len(endpoint) - 1; i >= 0; i-- {
		if endpoint[i] == ':' {
			return endpoint[:i]
		}
	}
	return endpoint
}
