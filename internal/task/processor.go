package task

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/db/models"
	"github.com/dio-meetings/backend/internal/ffmpeg"
	"github.com/dio-meetings/backend/internal/minutes"
	"github.com/dio-meetings/backend/internal/speech"
	"github.com/dio-meetings/backend/internal/storage"
)

// chunkSource abstracts the segmenter output so tests can substitute one.
type chunkSource interface {
	Len() int
	Next() (*ffmpeg.AudioChunk, error)
	Close()
}

// Processor runs the full pipeline for one task: acquire media, transcode
// video down to audio, segment, recognize chunk by chunk, generate minutes.
// It is the only component that advances task status, and it commits each
// status before the corresponding stage computes anything.
type Processor struct {
	db        *db.Database
	store     storage.ObjectStore
	backend   speech.Backend
	generator minutes.Generator
	workDir   string

	chunkFormat string
	uploadOpts  speech.UploadOptions

	convert func(ctx context.Context, inputPath, format string) ([]byte, error)
	split   func(ctx context.Context, audioPath string, chunkDuration time.Duration, format, outDir string) (chunkSource, error)
}

// chunkProfile picks the segment container and declared audio format the
// backend can ingest. Salute takes compressed mp3; Yandex only accepts raw
// 16-bit PCM, so its chunks are exported as mono 16 kHz wav.
func chunkProfile(b speech.Backend) (string, speech.UploadOptions) {
	if b.Name() == "yandex" {
		return "wav", speech.UploadOptions{Encoding: "PCM_S16LE", Channels: 1, SampleRate: 16000}
	}
	return "mp3", speech.UploadOptions{Encoding: "MP3", Channels: 1}
}

func NewProcessor(database *db.Database, store storage.ObjectStore, backend speech.Backend, generator minutes.Generator, workDir string) *Processor {
	format, uploadOpts := chunkProfile(backend)
	return &Processor{
		db:          database,
		store:       store,
		backend:     backend,
		generator:   generator,
		workDir:     workDir,
		chunkFormat: format,
		uploadOpts:  uploadOpts,
		convert:     ffmpeg.ConvertToAudio,
		split: func(ctx context.Context, audioPath string, chunkDuration time.Duration, format, outDir string) (chunkSource, error) {
			return ffmpeg.SplitAudio(ctx, audioPath, chunkDuration, format, outDir)
		},
	}
}

// Process runs all stages for one task. Status transitions are monotonic;
// any stage error is returned so the worker can record the task as failed.
func (p *Processor) Process(ctx context.Context, taskID string) error {
	task, err := p.db.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	if err := p.db.UpdateTaskStatus(taskID, models.StatusProcessing); err != nil {
		return err
	}

	meeting, err := p.db.GetMeeting(task.MeetingID)
	if err != nil {
		return fmt.Errorf("load meeting %s: %w", task.MeetingID, err)
	}

	audioPath, err := p.prepare(ctx, taskID, meeting)
	if err != nil {
		return err
	}

	transcript, err := p.transcribe(ctx, taskID, meeting, audioPath)
	if err != nil {
		return err
	}

	return p.generate(ctx, taskID, meeting, transcript.FullText)
}

// prepare streams the stored object into a local working file and, for video
// meetings, demuxes it down to an audio-only file. Returns the audio path;
// intermediate files are removed on every exit path.
func (p *Processor) prepare(ctx context.Context, taskID string, meeting *models.Meeting) (string, error) {
	tasksDir := filepath.Join(p.workDir, "tasks")
	if err := os.MkdirAll(tasksDir, 0755); err != nil {
		return "", err
	}

	mediaPath := filepath.Join(tasksDir, fmt.Sprintf("%s_%s.%s", meeting.ID, meeting.MediaType, meeting.Format))
	if err := storage.DownloadToFile(ctx, p.store, meeting.S3Key, mediaPath, storage.DefaultChunkSize); err != nil {
		return "", err
	}

	if meeting.MediaType != models.MediaVideo {
		return mediaPath, nil
	}

	defer os.Remove(mediaPath)

	if err := p.db.UpdateTaskStatus(taskID, models.StatusConverting); err != nil {
		return "", err
	}

	log.Printf("[task] %s: extracting audio from video %s", taskID, meeting.ID)
	content, err := p.convert(ctx, mediaPath, p.chunkFormat)
	if err != nil {
		return "", fmt.Errorf("video to audio conversion: %w", err)
	}

	audioPath := filepath.Join(tasksDir, fmt.Sprintf("%s_audio.%s", meeting.ID, p.chunkFormat))
	if err := os.WriteFile(audioPath, content, 0644); err != nil {
		return "", err
	}
	return audioPath, nil
}

// transcribe splits the audio into bounded chunks and recognizes them one at
// a time, in order, waiting for each external run to complete before the
// next. The concatenated text is persisted as the meeting's transcript.
func (p *Processor) transcribe(ctx context.Context, taskID string, meeting *models.Meeting, audioPath string) (*models.Transcript, error) {
	defer os.Remove(audioPath)

	if err := p.db.UpdateTaskStatus(taskID, models.StatusTranscribing); err != nil {
		return nil, err
	}

	chunksDir := filepath.Join(p.workDir, "tasks", "chunks_"+taskID)
	defer os.RemoveAll(chunksDir)

	seq, err := p.split(ctx, audioPath, ffmpeg.DefaultChunkDuration, p.chunkFormat, chunksDir)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}
	defer seq.Close()

	var texts []string
	for {
		chunk, err := seq.Next()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		log.Printf("[task] %s: recognizing chunk %d/%d (%.2f mb, %.1fs)",
			taskID, chunk.SerialNumber+1, chunk.SequenceLength, chunk.SizeMB, chunk.Duration)

		content, err := os.ReadFile(chunk.FilePath)
		if err != nil {
			return nil, err
		}
		text, err := speech.Recognize(ctx, p.backend, content, speech.RecognizeOptions{
			UploadOptions: p.uploadOpts,
			Diarization:   true,
			MaxSpeakers:   10,
		})
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}

	fullText := strings.Join(texts, "\n")
	transcript := &models.Transcript{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now(),
		MeetingID:  meeting.ID,
		FullText:   fullText,
		WordsCount: len(strings.Fields(fullText)),
	}
	if err := p.db.CreateTranscript(transcript); err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	return transcript, nil
}

// generate produces the minutes from the full transcript and completes the task.
func (p *Processor) generate(ctx context.Context, taskID string, meeting *models.Meeting, fullText string) error {
	if err := p.db.UpdateTaskStatus(taskID, models.StatusGenerating); err != nil {
		return err
	}

	mdText, err := p.generator.Generate(ctx, fullText)
	if err != nil {
		return fmt.Errorf("minutes generation: %w", err)
	}

	record := &models.Minutes{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		MeetingID: meeting.ID,
		Title:     "Untitled",
		MDText:    mdText,
	}
	if err := p.db.CreateMinutes(record); err != nil {
		return fmt.Errorf("persist minutes: %w", err)
	}

	return p.db.CompleteTask(taskID)
}
