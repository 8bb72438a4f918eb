// Package h2 implements the HTTP/2 adapter (C3): RFC 7540 framing, the
// HPACK subset of internal/hpack, the stream state machine, and
// connection/stream flow control, exposed behind internal/spi so the
// server and client never see HTTP/2-specific types.
//
// Grounded on github.com/domsolutions/http2 (vendored locally as
// github.com/dgrr/http2): frame header pooling (frameHeader.go), the
// per-frame-type file layout (data.go, headers.go, settings.go, goaway.go,
// windowupdate.go, ping.go, rststream.go, priority.go, continuation.go),
// and the big-endian uint24/uint32 helpers (http2utils/utils.go).
package h2

// ClientPreface is the literal 24-byte PRI preface every client MUST send
// before any frame (spec §4.3).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// FrameHeaderLen is the fixed 9-byte HTTP/2 frame header size.
const FrameHeaderLen = 9

// FrameType enumerates the HTTP/2 frame types the adapter understands
// (spec §4.3). Anything outside 0–9 is a protocol error on read.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9

	maxKnownFrameType = FrameContinuation
)

// Flags, named per spec §4.2/§4.3.
type Flags uint8

const (
	FlagEndStream  Flags = 0x01
	FlagAck        Flags = 0x01
	FlagEndHeaders Flags = 0x04
	FlagPadded     Flags = 0x08
	FlagPriority   Flags = 0x20
)

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) Add(flag Flags) Flags { return f | flag }

// Default SETTINGS values in effect until the peer's SETTINGS frame is
// received (spec §4.3).
const (
	DefaultHeaderTableSize      = 4096
	DefaultEnablePush           = false
	DefaultMaxConcurrentStreams = 100
	DefaultInitialWindowSize    = 65535
	DefaultMaxFrameSize         = 16384
	DefaultMaxHeaderListSize    = 8192
)

// Error codes carried by RST_STREAM / GOAWAY (spec §4.3, RFC 7540 §7).
type ErrorCode uint32

const (
	ErrCodeNo                 ErrorCode = 0x0
	ErrCodeProtocol           ErrorCode = 0x1
	ErrCodeInternal           ErrorCode = 0x2
	ErrCodeFlowControl        ErrorCode = 0x3
	ErrCodeSettingsTimeout    ErrorCode = 0x4
	ErrCodeStreamClosed       ErrorCode = 0x5
	ErrCodeFrameSize          ErrorCode = 0x6
	ErrCodeRefusedStream      ErrorCode = 0x7
	ErrCodeCancel             ErrorCode = 0x8
	ErrCodeCompression        ErrorCode = 0x9
	ErrCodeConnect            ErrorCode = 0xa
	ErrCodeEnhanceYourCalm    ErrorCode = 0xb
	ErrCodeInadequateSecurity ErrorCode = 0xc
	ErrCodeHTTP11Required     ErrorCode = 0xd
)
