package speech

import (
	"context"
	"log"
	"time"
)

// TaskState is the normalized state of a recognition task across backends.
type TaskState string

const (
	StateRunning TaskState = "running"
	StateDone    TaskState = "done"
	StateError   TaskState = "error"
)

// Terminal reports whether no further poll is expected.
func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateError
}

// TaskHandle identifies an in-flight recognition task. Poll updates State and,
// once terminal, ResultFileID.
type TaskHandle struct {
	ID           string
	State        TaskState
	ResultFileID string
}

// UploadOptions describe the audio bytes handed to a backend.
type UploadOptions struct {
	Encoding   string
	Channels   int
	SampleRate int // 0 = unspecified
}

// RecognizeOptions configure one full recognition run.
type RecognizeOptions struct {
	UploadOptions
	Language    string
	Diarization bool
	MaxSpeakers int // capped at 10 by providers
	Hints       []string

	PollInterval time.Duration // fixed wait between polls; 0 = backend default
	MaxWait      time.Duration // total polling budget; 0 = 10 minutes
}

// Backend is the four-step asynchronous recognition protocol. Both concrete
// backends follow the same shape with different wire formats.
type Backend interface {
	Name() string
	// Upload validates the audio format locally, then stores the bytes with
	// the provider, returning an opaque file handle.
	Upload(ctx context.Context, data []byte, opts UploadOptions) (string, error)
	// Submit starts an asynchronous recognition task for an uploaded file.
	Submit(ctx context.Context, fileID string, opts RecognizeOptions) (*TaskHandle, error)
	// Poll refreshes the handle state. The caller owns the wait loop.
	Poll(ctx context.Context, handle *TaskHandle) (TaskState, error)
	// Fetch retrieves the ordered utterances of a task in StateDone.
	Fetch(ctx context.Context, handle *TaskHandle) ([]Utterance, error)
	// DefaultPollInterval is the provider-recommended wait between polls.
	DefaultPollInterval() time.Duration
}

const defaultMaxWait = 10 * time.Minute

// Recognize drives one full upload-submit-poll-fetch run and renders the
// result as a flat transcript. The poll loop waits a fixed interval between
// requests and gives up with a poll-step timeout error once the budget is
// exhausted; cancelling ctx interrupts the wait.
func Recognize(ctx context.Context, b Backend, data []byte, opts RecognizeOptions) (string, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = b.DefaultPollInterval()
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}

	fileID, err := b.Upload(ctx, data, opts.UploadOptions)
	if err != nil {
		return "", err
	}

	handle, err := b.Submit(ctx, fileID, opts)
	if err != nil {
		return "", err
	}
	log.Printf("[speech] %s task %s submitted (%d bytes)", b.Name(), handle.ID, len(data))

	deadline := time.Now().Add(maxWait)
	for !handle.State.Terminal() {
		if time.Now().After(deadline) {
			return "", &StepError{Backend: b.Name(), Step: StepPoll, Err: ErrPollTimeout}
		}
		select {
		case <-ctx.Done():
			return "", &StepError{Backend: b.Name(), Step: StepPoll, Err: ctx.Err()}
		case <-time.After(interval):
		}
		if _, err := b.Poll(ctx, handle); err != nil {
			return "", err
		}
	}
	if handle.State == StateError {
		return "", stepErrorf(b.Name(), StepPoll, "task %s ended in error state", handle.ID)
	}

	utterances, err := b.Fetch(ctx, handle)
	if err != nil {
		return "", err
	}
	log.Printf("[speech] %s task %s done, %d utterances", b.Name(), handle.ID, len(utterances))
	return RenderTranscript(utterances), nil
}
