package h2

// encodeRSTStream builds an RST_STREAM payload: a single 32-bit error
// code (RFC 7540 §6.4).
func encodeRSTStream(code ErrorCode) []byte {
	dst := make([]byte, 4)
	uint32ToBytes(dst, uint32(code))
	return dst
}

func decodeRSTStream(payload []byte) (ErrorCode, error) {
	if len(payload) < 4 {
		return 0, errMissingBytes
	}
	return ErrorCode(bytesToUint32(payload[:4])), nil
}
