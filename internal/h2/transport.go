package h2

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/domsolutions/grpccore/internal/spi"
)

// Transport implements spi.Transport for HTTP/2. Grounded on the teacher's
// configureDialer (configure.go): TLS NextProtos negotiation and a
// ServerName default derived from the dialed host when unset.
type Transport struct {
	MaxConcurrentStreams uint32
}

var _ spi.Transport = (*Transport)(nil)

func (t *Transport) Connect(ctx context.Context, endpoint string, tlsConfig *tls.Config) (spi.Connection, error) {
	if endpoint == "" {
		return nil, spi.ErrInvalidArgument
	}

	var d net.Dialer
	var nc net.Conn
	var err error

	if tlsConfig != nil {
		cfg := tlsConfig.Clone()
		if cfg.ServerName == "" {
			if host, _, splitErr := net.SplitHostPort(endpoint); splitErr == nil {
				cfg.ServerName = host
			} else {
				cfg.ServerName = endpoint
			}
		}
		cfg.NextProtos = appendIfMissing(cfg.NextProtos, "h2")
		nc, err = tls.DialWithDialer(&d, "tcp", endpoint, cfg)
	} else {
		nc, err = d.DialContext(ctx, "tcp", endpoint)
	}
	if err != nil {
		return nil, wrapDialErr(err)
	}

	return newConn(nc, true, t.MaxConcurrentStreams)
}

func (t *Transport) Listen(ctx context.Context, bindAddress string, tlsConfig *tls.Config) (spi.Listener, error) {
	return Listen(bindAddress, tlsConfig, t.MaxConcurrentStreams)
}

func wrapDialErr(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return spi.ErrTimeout
	}
	return spi.ErrNotConnected
}
