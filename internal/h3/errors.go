package h3

import (
	"errors"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/domsolutions/grpccore/internal/spi"
)

// mapQUICErr translates quic-go's error taxonomy onto the shared spi
// error vocabulary, the same role internal/h2/errors.go plays for raw
// net.Conn errors.
func mapQUICErr(err error) error {
	if err == nil {
		return nil
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return spi.ErrConnectionReset
	}

	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		return spi.ErrConnectionReset
	}

	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return spi.ErrTimeout
	}

	var handshakeErr *quic.HandshakeTimeoutError
	if errors.As(err, &handshakeErr) {
		return spi.ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return spi.ErrTimeout
	}

	return spi.ErrConnectionReset
}
