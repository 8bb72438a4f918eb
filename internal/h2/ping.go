package h2

// pingPayloadLen is the fixed opaque payload size for PING (RFC 7540 §6.7).
const pingPayloadLen = 8

func encodePing(opaque [pingPayloadLen]byte) []byte {
	return append([]byte(nil), opaque[:]...)
}

func decodePing(payload []byte) (opaque [pingPayloadLen]byte, err error) {
	if len(payload) < pingPayloadLen {
		return opaque, errMissingBytes
	}
	copy(opaque[:], payload[:pingPayloadLen])
	return opaque, nil
}
