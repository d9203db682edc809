package ffmpeg

import (
	"encoding/json"
	"os/exec"
	"strconv"
)

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecType     string            `json:"codec_type"` // video, audio, subtitle
	Duration      string            `json:"duration,omitempty"`
	BitRate       string            `json:"bit_rate,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type MediaInfo struct {
	Duration   string        `json:"duration"`
	Size       string        `json:"size"`
	BitRate    string        `json:"bit_rate"`
	VideoCodec string        `json:"video_codec"`
	AudioCodec string        `json:"audio_codec"`
	Streams    []ProbeStream `json:"streams"`
}

func Probe(filePath string) (*MediaInfo, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, err
	}

	info := &MediaInfo{
		Duration: result.Format.Duration,
		Size:     result.Format.Size,
		BitRate:  result.Format.BitRate,
		Streams:  result.Streams,
	}

	for _, s := range result.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}

	return info, nil
}

// DurationSeconds returns the container duration, falling back to the first
// stream that reports one. Returns 0 when no duration is known.
func (m *MediaInfo) DurationSeconds() float64 {
	if d, err := strconv.ParseFloat(m.Duration, 64); err == nil {
		return d
	}
	for _, s := range m.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			return d
		}
	}
	return 0
}

// HasVideoStream reports whether the container holds at least one video stream.
func (m *MediaInfo) HasVideoStream() bool {
	return m.VideoCodec != ""
}
