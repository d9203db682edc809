package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/db/models"
	"github.com/dio-meetings/backend/internal/ffmpeg"
	"github.com/dio-meetings/backend/internal/storage"
)

// maxUploadBytes caps a single recording upload at 2 GiB.
const maxUploadBytes = 2 << 30

const presignExpiry = time.Hour

var audioFormats = map[string]bool{
	"mp3": true, "wav": true, "m4a": true, "flac": true,
	"aac": true, "ogg": true, "oga": true,
}

var videoFormats = map[string]bool{
	"mp4": true, "webm": true,
}

type MeetingsHandler struct {
	db       *db.Database
	store    storage.ObjectStore
	dataPath string

	probe func(path string) (*ffmpeg.MediaInfo, error)
}

func NewMeetingsHandler(database *db.Database, store storage.ObjectStore, dataPath string) *MeetingsHandler {
	return &MeetingsHandler{
		db:       database,
		store:    store,
		dataPath: dataPath,
		probe:    ffmpeg.Probe,
	}
}

// Upload accepts a multipart form with a media file plus optional title and
// participants fields, stores the file in object storage and registers the
// meeting. The file is staged locally first so it can be probed for duration.
func (h *MeetingsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	var mediaType models.MediaType
	switch {
	case audioFormats[ext]:
		mediaType = models.MediaAudio
	case videoFormats[ext]:
		mediaType = models.MediaVideo
	default:
		jsonError(w, fmt.Sprintf("unsupported file format: %q", ext), http.StatusBadRequest)
		return
	}

	uploadsDir := filepath.Join(h.dataPath, "uploads")
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		jsonError(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	stagePath := filepath.Join(uploadsDir, id+"."+ext)
	defer os.Remove(stagePath)

	staged, err := os.Create(stagePath)
	if err != nil {
		jsonError(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}
	size, err := io.Copy(staged, file)
	if cerr := staged.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		jsonError(w, "failed to stage upload", http.StatusInternalServerError)
		return
	}
	if size == 0 {
		jsonError(w, "empty file", http.StatusBadRequest)
		return
	}

	info, err := h.probe(stagePath)
	if err != nil {
		jsonError(w, "file is not readable media", http.StatusBadRequest)
		return
	}

	s3Key := fmt.Sprintf("meetings/%s.%s", id, ext)
	staged, err = os.Open(stagePath)
	if err != nil {
		jsonError(w, "failed to read staged upload", http.StatusInternalServerError)
		return
	}
	uploadErr := storage.UploadMultipart(r.Context(), h.store, s3Key, staged, storage.DefaultChunkSize)
	staged.Close()
	if uploadErr != nil {
		log.Printf("[api] upload of %q failed: %v", header.Filename, uploadErr)
		jsonError(w, "failed to store media", http.StatusInternalServerError)
		return
	}

	meeting := &models.Meeting{
		ID:               id,
		CreatedAt:        time.Now(),
		OriginalFilename: header.Filename,
		Title:            r.FormValue("title"),
		Participants:     r.FormValue("participants"),
		MediaType:        mediaType,
		S3Key:            s3Key,
		Format:           ext,
		SizeMB:           float64(size) / (1024 * 1024),
		Duration:         info.DurationSeconds(),
	}
	if err := h.db.CreateMeeting(meeting); err != nil {
		// storage and db must not drift apart
		if rmErr := h.store.Remove(r.Context(), s3Key); rmErr != nil {
			log.Printf("[api] failed to remove orphaned object %q: %v", s3Key, rmErr)
		}
		jsonError(w, "failed to register meeting", http.StatusInternalServerError)
		return
	}

	log.Printf("[api] meeting %s uploaded (%s, %.2f mb, %.1fs)", id, mediaType, meeting.SizeMB, meeting.Duration)
	jsonResponse(w, meeting, http.StatusCreated)
}

func (h *MeetingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.db.GetMeeting(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, meeting, http.StatusOK)
}

type updateMeetingRequest struct {
	Title        string `json:"title"`
	Participants string `json:"participants"`
}

func (h *MeetingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.db.GetMeeting(id); err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}
	if err := h.db.UpdateMeetingInfo(id, req.Title, req.Participants); err != nil {
		jsonError(w, "failed to update meeting", http.StatusInternalServerError)
		return
	}

	meeting, err := h.db.GetMeeting(id)
	if err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, meeting, http.StatusOK)
}

func (h *MeetingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meeting, err := h.db.GetMeeting(id)
	if err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}

	if err := h.store.Remove(r.Context(), meeting.S3Key); err != nil {
		log.Printf("[api] failed to remove object %q: %v", meeting.S3Key, err)
	}
	if err := h.db.DeleteMeeting(id); err != nil {
		jsonError(w, "failed to delete meeting", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeetingsHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetMeeting(id); err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}

	transcript, err := h.db.GetTranscriptByMeeting(id)
	if err != nil {
		jsonError(w, "transcript not ready", http.StatusNotFound)
		return
	}
	jsonResponse(w, transcript, http.StatusOK)
}

// MediaURL hands out a time-limited presigned download link so media bytes
// never stream through this service.
func (h *MeetingsHandler) MediaURL(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.db.GetMeeting(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}

	url, err := h.store.PresignedGetURL(r.Context(), meeting.S3Key, presignExpiry)
	if err != nil {
		jsonError(w, "failed to sign media url", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"url":        url,
		"expires_in": int(presignExpiry.Seconds()),
	}, http.StatusOK)
}
