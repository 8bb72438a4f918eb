package h2

import (
	"errors"

	"github.com/domsolutions/grpccore/internal/spi"
)

// Re-exported so the rest of the package (and its tests) can say
// h2.ErrProtocol instead of reaching into internal/spi directly; the
// adapter's own errors ARE spi taxonomy errors; nothing adapter-native
// ever crosses the Stream/Connection boundary (spec §4.1).
var (
	ErrProtocol          = spi.ErrProtocol
	ErrClosed            = spi.ErrClosed
	ErrCanceled          = spi.ErrCanceled
	ErrConnectionReset   = spi.ErrConnectionReset
	ErrResourceExhausted = spi.ErrResourceExhausted
	ErrInvalidState      = spi.ErrInvalidState
)

var (
	errBadPreface     = errors.New("h2: bad connection preface")
	errMissingBytes   = errors.New("h2: frame payload too short")
	errSettingsNotAck = errors.New("h2: SETTINGS ack frame must be empty")
)
