package h2

// Settings mirrors the teacher's settings.go parameter set (spec §4.3).
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

func defaultSettings() Settings {
	return Settings{
		HeaderTableSize:      DefaultHeaderTableSize,
		EnablePush:           DefaultEnablePush,
		MaxConcurrentStreams: DefaultMaxConcurrentStreams,
		InitialWindowSize:    DefaultInitialWindowSize,
		MaxFrameSize:         DefaultMaxFrameSize,
		MaxHeaderListSize:    DefaultMaxHeaderListSize,
	}
}

const (
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

// encodeSettings serializes non-default parameters as a sequence of
// 6-byte (id, value) pairs (RFC 7540 §6.5).
func encodeSettings(s Settings) []byte {
	var dst []byte
	dst = appendSetting(dst, settingHeaderTableSize, s.HeaderTableSize)
	push := uint32(0)
	if s.EnablePush {
		push = 1
	}
	dst = appendSetting(dst, settingEnablePush, push)
	dst = appendSetting(dst, settingMaxConcurrentStreams, s.MaxConcurrentStreams)
	dst = appendSetting(dst, settingInitialWindowSize, s.InitialWindowSize)
	dst = appendSetting(dst, settingMaxFrameSize, s.MaxFrameSize)
	dst = appendSetting(dst, settingMaxHeaderListSize, s.MaxHeaderListSize)
	return dst
}

func appendSetting(dst []byte, id uint16, value uint32) []byte {
	dst = append(dst, byte(id>>8), byte(id))
	dst = append(dst, byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	return dst
}

// decodeSettingsInto applies every (id, value) pair in payload onto base,
// returning the updated Settings. Unknown ids are ignored per RFC 7540.
func decodeSettingsInto(base Settings, payload []byte) Settings {
	for len(payload) >= 6 {
		id := uint16(payload[0])<<8 | uint16(payload[1])
		value := bytesToUint32(payload[2:6])
		switch id {
		case settingHeaderTableSize:
			base.HeaderTableSize = value
		case settingEnablePush:
			base.EnablePush = value != 0
		case settingMaxConcurrentStreams:
			base.MaxConcurrentStreams = value
		case settingInitialWindowSize:
			base.InitialWindowSize = value
		case settingMaxFrameSize:
			base.MaxFrameSize = value
		case settingMaxHeaderListSize:
			base.MaxHeaderListSize = value
		}
		payload = payload[6:]
	}
	return base
}
