package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// ErrEmptyOutput signals that the encoder exited cleanly but wrote no bytes,
// e.g. for a silent or corrupt audio track.
var ErrEmptyOutput = errors.New("ffmpeg produced empty output file")

// audioCodecFor maps a target container format to the encoder ffmpeg should
// use. Unrecognized formats fall back to stream copy.
func audioCodecFor(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "mp3":
		return "libmp3lame"
	case "aac", "m4a":
		return "aac"
	case "wav":
		return "pcm_s16le"
	default:
		return "copy"
	}
}

// ConvertToAudio demuxes a media file down to an audio-only stream in the
// requested format and returns the raw bytes. The temporary output file is
// removed before returning, on every path.
func ConvertToAudio(ctx context.Context, inputPath, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))

	tmpFile, err := os.CreateTemp("", "convert-audio-*."+format)
	if err != nil {
		return nil, err
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-acodec", audioCodecFor(format),
		"-f", format,
		"-y",
		tmpFile.Name(),
	)

	log.Printf("[ffmpeg] converting %s to %s audio", inputPath, format)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %s: %w", strings.TrimSpace(string(output)), err)
	}

	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, ErrEmptyOutput
	}
	return content, nil
}
