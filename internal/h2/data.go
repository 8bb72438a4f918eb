package h2

// parseDataPayload strips PADDED framing from a DATA frame payload,
// mirroring the teacher's cutPadding helper (utils.go).
func parseDataPayload(fh *frameHeader) ([]byte, error) {
	payload := fh.payload
	if !fh.flags.Has(FlagPadded) {
		return payload, nil
	}
	if len(payload) < 1 {
		return nil, errMissingBytes
	}
	padLen := int(payload[0])
	payload = payload[1:]
	if padLen > len(payload) {
		return nil, errMissingBytes
	}
	return payload[:len(payload)-padLen], nil
}

// buildDataFrame constructs a DATA frame payload (no padding: this
// adapter never emits any).
func buildDataFrame(streamID uint32, body []byte, endStream bool) *frameHeader {
	fh := acquireFrameHeader()
	fh.kind = FrameData
	fh.streamID = streamID
	fh.payload = append(fh.payload[:0], body...)
	fh.length = len(fh.payload)
	if endStream {
		fh.flags = fh.flags.Add(FlagEndStream)
	}
	return fh
}
