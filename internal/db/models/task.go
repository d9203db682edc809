package models

import "time"

// TaskStatus is the persisted, user-visible state of a processing run.
type TaskStatus string

const (
	StatusPending      TaskStatus = "pending"
	StatusProcessing   TaskStatus = "processing"
	StatusConverting   TaskStatus = "converting" // video meetings only
	StatusTranscribing TaskStatus = "transcribing"
	StatusGenerating   TaskStatus = "generating"
	StatusComplete     TaskStatus = "complete"
	StatusFailed       TaskStatus = "failed"
)

// Terminal reports whether no further transition is expected.
func (s TaskStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Task is one processing run for a meeting. Created in `pending`; mutated
// exclusively by the task worker; immutable once terminal.
type Task struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	MeetingID    string     `json:"meeting_id"`
	Status       TaskStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
