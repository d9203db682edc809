package ffmpeg

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultChunkDuration bounds each segment to the recognition service's
// per-request limits.
const DefaultChunkDuration = 20 * time.Minute

const chunkBitrate = "256k"

// AudioChunk is one bounded-duration segment of a longer recording.
// Serial numbers are contiguous 0..N-1 and every chunk of one sequence
// reports the same SequenceLength N.
type AudioChunk struct {
	SerialNumber   int
	SequenceLength int
	FilePath       string
	Format         string
	SizeMB         float64
	Duration       float64
}

// ChunkSequence yields the chunks of one split audio file in order. It is
// finite and non-restartable; Close removes the chunk files.
type ChunkSequence struct {
	files  []string
	format string
	idx    int

	// probe is swapped out in tests; defaults to an ffprobe call.
	probe func(path string) (float64, error)
}

// SplitAudio splits an audio file into chunks of at most chunkDuration,
// exported at a fixed bitrate into outDir. The last chunk may be shorter.
func SplitAudio(ctx context.Context, audioPath string, chunkDuration time.Duration, format, outDir string) (*ChunkSequence, error) {
	if chunkDuration <= 0 {
		chunkDuration = DefaultChunkDuration
	}
	format = strings.ToLower(strings.TrimPrefix(format, "."))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	pattern := filepath.Join(outDir, "chunk_%04d."+format)
	codec := audioCodecFor(format)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", int(chunkDuration.Seconds())),
		"-vn",
		"-acodec", codec,
		"-ac", "1",
	}
	// raw PCM chunks are pinned to 16 kHz so the declared sample rate holds
	if codec == "pcm_s16le" {
		args = append(args, "-ar", "16000")
	} else {
		args = append(args, "-b:a", chunkBitrate)
	}
	args = append(args, "-y", pattern)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	log.Printf("[ffmpeg] splitting %s into %s chunks of %s", audioPath, format, chunkDuration)

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg split failed: %s: %w", strings.TrimSpace(string(output)), err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "chunk_") && strings.HasSuffix(e.Name(), "."+format) {
			files = append(files, filepath.Join(outDir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no audio chunks generated from %s", audioPath)
	}
	sort.Strings(files)

	log.Printf("[ffmpeg] created %d chunks from %s", len(files), audioPath)

	return &ChunkSequence{files: files, format: format, probe: probeDuration}, nil
}

// Len returns the total number of chunks in the sequence.
func (s *ChunkSequence) Len() int {
	return len(s.files)
}

// Next returns the following chunk, probing the written file for its real
// size and duration. Returns (nil, nil) when the sequence is exhausted.
func (s *ChunkSequence) Next() (*AudioChunk, error) {
	if s.idx >= len(s.files) {
		return nil, nil
	}
	path := s.files[s.idx]

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat chunk %s: %w", path, err)
	}
	duration, err := s.probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe chunk %s: %w", path, err)
	}

	chunk := &AudioChunk{
		SerialNumber:   s.idx,
		SequenceLength: len(s.files),
		FilePath:       path,
		Format:         s.format,
		SizeMB:         float64(info.Size()) / 1e6,
		Duration:       duration,
	}
	s.idx++
	return chunk, nil
}

// Close deletes all chunk files, including ones not yet consumed.
func (s *ChunkSequence) Close() {
	for _, f := range s.files {
		os.Remove(f)
	}
}

func probeDuration(path string) (float64, error) {
	info, err := Probe(path)
	if err != nil {
		return 0, err
	}
	return info.DurationSeconds(), nil
}
