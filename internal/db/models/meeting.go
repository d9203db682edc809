package models

import "time"

// MediaType classifies an uploaded recording by its container.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// Meeting is the immutable descriptor of an uploaded recording. The pipeline
// never mutates it; only title/participants can be set via the update endpoint.
type Meeting struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	OriginalFilename string    `json:"original_filename"`
	Title            string    `json:"title,omitempty"`
	Participants     string    `json:"participants,omitempty"`
	MediaType        MediaType `json:"media_type"`
	S3Key            string    `json:"-"`
	Format           string    `json:"format"`
	SizeMB           float64   `json:"size_mb"`
	Duration         float64   `json:"duration"`
}

// Transcript is the concatenated recognition result for one meeting.
type Transcript struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	MeetingID  string    `json:"meeting_id"`
	FullText   string    `json:"full_text"`
	WordsCount int       `json:"words_count"`
}

// Minutes is the generated markdown protocol for one meeting.
type Minutes struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	MeetingID string    `json:"meeting_id"`
	Title     string    `json:"title"`
	MDText    string    `json:"md_text"`
}
