package h2

// parseHeadersPayload strips PADDED/PRIORITY framing from a HEADERS frame
// payload and returns the raw HPACK header block. Mirrors the teacher's
// Headers.Deserialize (headers.go), minus CONTINUATION chaining — per
// Design Notes the adapter reads a whole HEADERS frame in one shot and
// does not implement CONTINUATION (Open Questions: accepted as a scoped-out
// limitation; oversized header blocks cannot be sent by this adapter).
func parseHeadersPayload(fh *frameHeader) ([]byte, error) {
	payload := fh.payload

	if fh.flags.Has(FlagPadded) {
		if len(payload) < 1 {
			return nil, errMissingBytes
		}
		padLen := int(payload[0])
		payload = payload[1:]
		if padLen > len(payload) {
			return nil, errMissingBytes
		}
		payload = payload[:len(payload)-padLen]
	}

	if fh.flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return nil, errMissingBytes
		}
		payload = payload[5:] // skip stream dependency (4) + weight (1)
	}

	return payload, nil
}

// buildHeadersFrame constructs a HEADERS frame payload from an already
// HPACK-encoded header block (no padding, no priority: this adapter never
// emits either).
func buildHeadersFrame(streamID uint32, block []byte, endStream, endHeaders bool) *frameHeader {
	fh := acquireFrameHeader()
	fh.kind = FrameHeaders
	fh.streamID = streamID
	fh.payload = append(fh.payload[:0], block...)
	fh.length = len(fh.payload)
	if endStream {
		fh.flags = fh.flags.Add(FlagEndStream)
	}
	if endHeaders {
		fh.flags = fh.flags.Add(FlagEndHeaders)
	}
	return fh
}
