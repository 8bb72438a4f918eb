// Package rpcstatus wires the gRPC status taxonomy (spec §6/§7) onto
// google.golang.org/grpc/codes and google.golang.org/grpc/status instead
// of a hand-rolled enum — the one place the upstream gRPC project's own
// wire-status types are the unambiguous right fit, as the retrieved
// grpc-go fork (other_examples/…chalvern-grpc-go__stream.go) and the
// inproc-grpc adapters in the pack both do.
package rpcstatus

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/domsolutions/grpccore/internal/spi"
)

// HandlerError groups the handler-facing error categories of spec §7's
// propagation policy ("Handlers MAY return an error; the server translates
// it to a gRPC status trailer").
type HandlerError struct {
	Code    codes.Code
	Message string
}

func (e *HandlerError) Error() string { return e.Message }

func New(code codes.Code, message string) error {
	return &HandlerError{Code: code, Message: message}
}

func Invalid(message string) error       { return New(codes.InvalidArgument, message) }
func NotFound(message string) error      { return New(codes.NotFound, message) }
func DeadlineExceeded() error            { return New(codes.DeadlineExceeded, "deadline exceeded") }
func Unauthenticated(message string) error { return New(codes.Unauthenticated, message) }
func Unimplemented(method string) error  { return New(codes.Unimplemented, "unknown method "+method) }
func Internal(message string) error      { return New(codes.Internal, message) }
func Canceled() error                    { return New(codes.Canceled, "canceled") }

// FromHandlerErr translates an arbitrary error returned by a handler into
// a gRPC status. A *HandlerError (as built by Invalid, NotFound,
// DeadlineExceeded, Unauthenticated and the other constructors above)
// keeps its own code; any other error maps spi.ErrTimeout→DEADLINE_EXCEEDED,
// spi.ErrCanceled→CANCELLED, spi.ErrInvalidArgument→INVALID_ARGUMENT, and
// anything else→INTERNAL.
func FromHandlerErr(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var he *HandlerError
	if errors.As(err, &he) {
		return status.New(he.Code, he.Message)
	}
	switch {
	case errors.Is(err, spi.ErrTimeout):
		return status.New(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, spi.ErrCanceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, spi.ErrInvalidArgument):
		return status.New(codes.InvalidArgument, err.Error())
	default:
		return status.New(codes.Internal, err.Error())
	}
}

// Trailer is the {grpc-status, grpc-message} pair emitted as the final
// HEADERS frame of a response (spec §4.6 step 4).
type Trailer struct {
	Code    codes.Code
	Message string
}

func TrailerFor(err error) Trailer {
	st := FromHandlerErr(err)
	return Trailer{Code: st.Code(), Message: st.Message()}
}

// ErrFromTrailer reconstructs a client-facing error from a trailer read off
// the wire (spec §4.7: "If a trailer HEADERS carries grpc-status ≠ 0, the
// call fails with the corresponding taxonomy error").
func ErrFromTrailer(code codes.Code, message string) error {
	if code == codes.OK {
		return nil
	}
	return status.New(code, message).Err()
}
