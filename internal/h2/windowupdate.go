package h2

// encodeWindowUpdate builds a WINDOW_UPDATE payload (RFC 7540 §6.9):
// a 31-bit increment with the reserved bit cleared.
func encodeWindowUpdate(increment uint32) []byte {
	dst := make([]byte, 4)
	uint32ToBytes(dst, increment&(1<<31-1))
	return dst
}

func decodeWindowUpdate(payload []byte) (increment uint32, err error) {
	if len(payload) < 4 {
		return 0, errMissingBytes
	}
	return bytesToUint32(payload[:4]) & (1<<31 - 1), nil
}
