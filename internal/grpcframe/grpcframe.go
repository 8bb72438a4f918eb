// Package grpcframe implements the gRPC message framing of spec §4.5: a
// 5-byte prefix (1-byte compression flag, 4-byte big-endian length) in
// front of every message body, carried inside DATA frames of whichever
// adapter is in play. Messages may be fragmented arbitrarily across DATA
// frames; Reassembler restitches them.
package grpcframe

import (
	"encoding/binary"
	"errors"

	"github.com/valyala/bytebufferpool"
)

const PrefixLen = 5

var ErrIncompleteMessage = errors.New("grpcframe: stream ended mid-message")

// Encode prepends the 5-byte gRPC message prefix to body and returns the
// combined buffer. compressed is almost always false for the core profile
// (compression codecs are out of scope, §1).
func Encode(body []byte, compressed bool) []byte {
	out := make([]byte, PrefixLen+len(body))
	if compressed {
		out[0] = 1
	}
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out
}

// Reassembler accumulates DATA-frame fragments and yields complete
// length-prefixed messages as they become available. A single DATA frame
// may carry exactly one message, a fragment of one, or several back to
// back; Feed handles all three.
type Reassembler struct {
	buf *bytebufferpool.ByteBuffer
}

// NewReassembler returns a Reassembler backed by a pooled growable buffer.
func NewReassembler() *Reassembler {
	return &Reassembler{buf: bytebufferpool.Get()}
}

// Release returns the underlying buffer to the pool. The Reassembler must
// not be used afterwards.
func (r *Reassembler) Release() {
	bytebufferpool.Put(r.buf)
	r.buf = nil
}

// Feed appends a DATA-frame fragment and returns every complete message
// that is now fully buffered, draining them from the internal buffer.
func (r *Reassembler) Feed(fragment []byte) ([][]byte, error) {
	r.buf.Write(fragment)

	var messages [][]byte
	data := r.buf.B
	offset := 0
	for {
		remaining := data[offset:]
		if len(remaining) < PrefixLen {
			break
		}
		length := binary.BigEndian.Uint32(remaining[1:5])
		if uint64(len(remaining)) < uint64(PrefixLen)+uint64(length) {
			break
		}
		body := make([]byte, length)
		copy(body, remaining[PrefixLen:PrefixLen+int(length)])
		messages = append(messages, body)
		offset += PrefixLen + int(length)
	}

	rest := append([]byte(nil), data[offset:]...)
	r.buf.Reset()
	r.buf.Write(rest)

	return messages, nil
}

// Pending reports whether a partial message is still buffered (useful for
// detecting a stream that ended mid-message).
func (r *Reassembler) Pending() bool {
	return len(r.buf.B) > 0
}
