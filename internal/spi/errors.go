package spi

import "errors"

// Shared error taxonomy. Adapters MUST map every native transport error
// into one of these sentinels before it reaches core code; core code
// MUST NOT type-assert on adapter-native error types.
var (
	ErrTimeout           = errors.New("spi: timeout")
	ErrCanceled          = errors.New("spi: canceled")
	ErrClosed            = errors.New("spi: closed")
	ErrConnectionReset   = errors.New("spi: connection reset")
	ErrTemporary         = errors.New("spi: temporary error")
	ErrResourceExhausted = errors.New("spi: resource exhausted")
	ErrProtocol          = errors.New("spi: protocol error")
	ErrInvalidArgument   = errors.New("spi: invalid argument")
	ErrNotConnected      = errors.New("spi: not connected")
	ErrInvalidState      = errors.New("spi: invalid state")
	ErrOutOfMemory       = errors.New("spi: out of memory")
)
