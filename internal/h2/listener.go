package h2

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/domsolutions/grpccore/internal/spi"
)

// Listener implements spi.Listener. Grounded on the teacher's use of
// net.Listener + tls.Config in configure.go's ConfigureServer path.
type Listener struct {
	nl                   net.Listener
	tlsConfig            *tls.Config
	maxConcurrentStreams uint32
}

// Listen binds bindAddress. A nil tlsConfig serves h2c (cleartext,
// prior-knowledge) the way the teacher's examples/raw_conn does.
func Listen(bindAddress string, tlsConfig *tls.Config, maxConcurrentStreams uint32) (*Listener, error) {
	var nl net.Listener
	var err error
	if tlsConfig != nil {
		cfg := tlsConfig.Clone()
		cfg.NextProtos = appendIfMissing(cfg.NextProtos, "h2")
		nl, err = tls.Listen("tcp", bindAddress, cfg)
	} else {
		nl, err = net.Listen("tcp", bindAddress)
	}
	if err != nil {
		return nil, wrapDialErr(err)
	}
	return &Listener{nl: nl, tlsConfig: tlsConfig, maxConcurrentStreams: maxConcurrentStreams}, nil
}

func (l *Listener) Accept(ctx context.Context) (spi.Connection, error) {
	type result struct {
		nc  net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := l.nl.Accept()
		ch <- result{nc, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, mapAcceptErr(r.err)
		}
		conn, err := newConn(r.nc, false, l.maxConcurrentStreams)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case <-ctx.Done():
		return nil, spi.ErrTimeout
	}
}

func (l *Listener) Close() error { return l.nl.Close() }

func (l *Listener) Addr() string { return l.nl.Addr().String() }

func mapAcceptErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return spi.ErrTimeout
	}
	return spi.ErrClosed
}

func appendIfMissing(protos []string, proto string) []string {
	for _, p := range protos {
		if p == proto {
			return protos
		}
	}
	return append(protos, proto)
}
