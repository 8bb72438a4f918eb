package h3

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"

	"github.com/domsolutions/grpccore/internal/spi"
)

// Listener accepts inbound QUIC connections and performs this adapter's
// control-stream handshake on each one before handing it back, mirroring
// internal/h2's Listener (spec §4.4).
type Listener struct {
	ql *quic.Listener
}

var _ spi.Listener = (*Listener)(nil)

// Listen binds bindAddress for HTTP/3 over QUIC. tlsConfig must be
// non-nil and carry "h3" in NextProtos; QUIC requires TLS 1.3.
func Listen(bindAddress string, tlsConfig *tls.Config) (*Listener, error) {
	cfg := tlsConfig.Clone()
	cfg.NextProtos = appendIfMissing(cfg.NextProtos, "h3")

	ql, err := quic.ListenAddr(bindAddress, cfg, &quic.Config{})
	if err != nil {
		return nil, mapQUICErr(err)
	}
	return &Listener{ql: ql}, nil
}

func (l *Listener) Accept(ctx context.Context) (spi.Connection, error) {
	qc, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, mapQUICErr(err)
	}
	return newConn(ctx, qc, false)
}

func (l *Listener) Close() error { return l.ql.Close() }

func (l *Listener) Addr() string { return l.ql.Addr().String() }

func appendIfMissing(protos []string, proto string) []string {
	for _, p := range protos {
		if p == proto {
			return protos
		}
	}
	return append(protos, proto)
}
