package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dio-meetings/backend/internal/auth"
	"github.com/dio-meetings/backend/internal/config"
	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/db/models"
	"github.com/dio-meetings/backend/internal/minutes"
	"github.com/dio-meetings/backend/internal/speech"
	"github.com/dio-meetings/backend/internal/storage"
	"github.com/dio-meetings/backend/internal/task"
)

// stubStore satisfies the object store interface; routing tests never move
// real bytes through it.
type stubStore struct{}

func (stubStore) Stat(ctx context.Context, key string) (int64, error) {
	return 0, fmt.Errorf("no such key: %s", key)
}

func (stubStore) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	return nil, fmt.Errorf("no such key: %s", key)
}

func (stubStore) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	return "upload-1", nil
}

func (stubStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (storage.Part, error) {
	return storage.Part{Number: partNumber, ETag: "etag"}, nil
}

func (stubStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []storage.Part) error {
	return nil
}

func (stubStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error { return nil }

func (stubStore) Remove(ctx context.Context, key string) error { return nil }

func (stubStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://storage.example.invalid/" + key + "?signed", nil
}

func setupTestServer(t *testing.T) (*chi.Mux, *db.Database) {
	t.Helper()

	database, err := db.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.EnsureAdmin("admin", "secret"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	cfg := &config.Config{
		DataPath:    t.TempDir(),
		CORSOrigins: []string{"*"},
	}
	jwtService := auth.NewJWTService("test-secret")
	store := stubStore{}

	processor := task.NewProcessor(database, store, speech.NewSaluteBackend("key", "scope"), minutes.NewLLMGenerator("", "key", "model"), cfg.DataPath)
	queue := task.NewQueue(database, processor, 1)
	t.Cleanup(queue.Stop)

	return NewRouter(database, jwtService, cfg, store, queue), database
}

func loginToken(t *testing.T, router *chi.Mux) string {
	t.Helper()
	body := bytes.NewBufferString(`{"username":"admin","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	return resp.Token
}

func authedRequest(t *testing.T, router *chi.Mux, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func insertMeeting(t *testing.T, database *db.Database, id string) *models.Meeting {
	t.Helper()
	meeting := &models.Meeting{
		ID:               id,
		CreatedAt:        time.Now(),
		OriginalFilename: "sync.mp3",
		MediaType:        models.MediaAudio,
		S3Key:            "meetings/" + id + ".mp3",
		Format:           "mp3",
		SizeMB:           2,
		Duration:         120,
	}
	if err := database.CreateMeeting(meeting); err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	return meeting
}

func TestHealthIsPublic(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router, _ := setupTestServer(t)

	body := bytes.NewBufferString(`{"username":"admin","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := setupTestServer(t)

	for _, path := range []string{"/api/auth/me", "/api/meetings/x", "/api/tasks/x"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}
}

func TestMeetingLifecycle(t *testing.T) {
	router, database := setupTestServer(t)
	token := loginToken(t, router)
	insertMeeting(t, database, "m-1")

	rec := authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get meeting: expected 200, got %d", rec.Code)
	}
	var meeting models.Meeting
	json.Unmarshal(rec.Body.Bytes(), &meeting)
	if meeting.ID != "m-1" {
		t.Fatalf("unexpected meeting: %+v", meeting)
	}

	rec = authedRequest(t, router, token, http.MethodPatch, "/api/meetings/m-1",
		`{"title":"Planning","participants":"ann, bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch meeting: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &meeting)
	if meeting.Title != "Planning" || meeting.Participants != "ann, bob" {
		t.Fatalf("update not applied: %+v", meeting)
	}

	// pipeline has not run, so derived artifacts are absent
	if rec = authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-1/transcript", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("transcript: expected 404, got %d", rec.Code)
	}
	if rec = authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-1/minutes", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("minutes: expected 404, got %d", rec.Code)
	}

	rec = authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-1/media-url", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("media-url: expected 200, got %d", rec.Code)
	}
	var signed struct {
		URL string `json:"url"`
	}
	json.Unmarshal(rec.Body.Bytes(), &signed)
	if !strings.Contains(signed.URL, "meetings/m-1.mp3") {
		t.Fatalf("unexpected presigned url: %q", signed.URL)
	}
}

func TestCreateTaskForMissingMeeting(t *testing.T) {
	router, _ := setupTestServer(t)
	token := loginToken(t, router)

	rec := authedRequest(t, router, token, http.MethodPost, "/api/tasks", `{"meeting_id":"ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateTaskReturnsPendingTask(t *testing.T) {
	router, database := setupTestServer(t)
	token := loginToken(t, router)
	insertMeeting(t, database, "m-2")

	rec := authedRequest(t, router, token, http.MethodPost, "/api/tasks", `{"meeting_id":"m-2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Task
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Status != models.StatusPending || created.MeetingID != "m-2" {
		t.Fatalf("unexpected task: %+v", created)
	}

	rec = authedRequest(t, router, token, http.MethodGet, "/api/tasks/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get task: expected 200, got %d", rec.Code)
	}
}

func TestDownloadMinutesFormats(t *testing.T) {
	router, database := setupTestServer(t)
	token := loginToken(t, router)
	insertMeeting(t, database, "m-3")

	record := &models.Minutes{
		ID:        "min-1",
		CreatedAt: time.Now(),
		MeetingID: "m-3",
		Title:     "Untitled",
		MDText:    "# Minutes\n\n- decided to ship",
	}
	if err := database.CreateMinutes(record); err != nil {
		t.Fatalf("create minutes: %v", err)
	}

	rec := authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-3/minutes/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("md download: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("md content type: %q", ct)
	}
	if rec.Body.String() != record.MDText {
		t.Fatalf("md body mismatch: %q", rec.Body.String())
	}

	rec = authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-3/minutes/download?format=html", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("html download: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<h1>Minutes</h1>") {
		t.Fatalf("html body missing rendered heading: %q", rec.Body.String())
	}

	rec = authedRequest(t, router, token, http.MethodGet, "/api/meetings/m-3/minutes/download?format=docx", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", rec.Code)
	}
}
