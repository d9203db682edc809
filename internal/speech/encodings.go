package speech

import (
	"fmt"
	"sort"
	"strings"
)

const defaultSampleRate = 16000

// EncodingSpec declares what the recognition service accepts for one audio
// encoding. A zero sample-rate range means the rate is auto-detected.
type EncodingSpec struct {
	MaxChannels        int
	MinSampleRate      int
	MaxSampleRate      int
	RequiresSampleRate bool
	ContentType        string // may contain %d for the sample rate
}

// Encodings is the capability table consumed before any upload request.
var Encodings = map[string]EncodingSpec{
	"PCM_S16LE": {
		MaxChannels:   8,
		MinSampleRate: 8000,
		MaxSampleRate: 96000,
		ContentType:   "audio/x-pcm;bit=16;rate=%d",
	},
	"OPUS": {
		MaxChannels: 1,
		ContentType: "audio/ogg;codecs=opus",
	},
	"MP3": {
		MaxChannels: 2,
		ContentType: "audio/mpeg",
	},
	"FLAC": {
		MaxChannels: 8,
		ContentType: "audio/flac",
	},
	"ALAW": {
		MaxChannels:        1,
		MinSampleRate:      8000,
		MaxSampleRate:      8000,
		RequiresSampleRate: true,
		ContentType:        "audio/pcma;rate=%d",
	},
	"MULAW": {
		MaxChannels:        1,
		MinSampleRate:      8000,
		MaxSampleRate:      8000,
		RequiresSampleRate: true,
		ContentType:        "audio/pcmu;rate=%d",
	},
	"G729": {
		MaxChannels:   1,
		MinSampleRate: 8000,
		MaxSampleRate: 8000,
		ContentType:   "audio/g729",
	},
}

// ValidateAudioFormat checks an encoding/channel/sample-rate triple against
// the capability table. A zero sampleRate means "unspecified"; it defaults to
// 16 kHz unless the encoding demands an explicit rate.
func ValidateAudioFormat(encoding string, channels, sampleRate int) (EncodingSpec, int, error) {
	spec, ok := Encodings[encoding]
	if !ok {
		return EncodingSpec{}, 0, validationErrorf(
			"unsupported audio encoding %q, supported: %s", encoding, strings.Join(encodingNames(), ", "))
	}
	if channels > spec.MaxChannels {
		return EncodingSpec{}, 0, validationErrorf(
			"encoding %s supports at most %d channels, got %d", encoding, spec.MaxChannels, channels)
	}
	if sampleRate == 0 {
		if spec.RequiresSampleRate {
			return EncodingSpec{}, 0, validationErrorf(
				"encoding %s requires an explicit sample rate", encoding)
		}
		sampleRate = defaultSampleRate
	}
	if spec.MinSampleRate > 0 && (sampleRate < spec.MinSampleRate || sampleRate > spec.MaxSampleRate) {
		return EncodingSpec{}, 0, validationErrorf(
			"encoding %s requires sample rate between %d and %d Hz, got %d Hz",
			encoding, spec.MinSampleRate, spec.MaxSampleRate, sampleRate)
	}
	return spec, sampleRate, nil
}

// WireContentType renders the content-type header for an upload at the given
// sample rate.
func (s EncodingSpec) WireContentType(sampleRate int) string {
	if strings.Contains(s.ContentType, "%d") {
		return fmt.Sprintf(s.ContentType, sampleRate)
	}
	return s.ContentType
}

func encodingNames() []string {
	names := make([]string, 0, len(Encodings))
	for name := range Encodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
