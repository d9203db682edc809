package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/task"
)

type TasksHandler struct {
	db    *db.Database
	queue *task.Queue
}

func NewTasksHandler(database *db.Database, queue *task.Queue) *TasksHandler {
	return &TasksHandler{db: database, queue: queue}
}

type createTaskRequest struct {
	MeetingID string `json:"meeting_id"`
}

// Create starts asynchronous processing of a meeting and returns the task
// descriptor immediately; clients poll Get for progress.
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MeetingID == "" {
		jsonError(w, "meeting_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.db.GetMeeting(req.MeetingID); err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}

	created, err := h.queue.Enqueue(req.MeetingID)
	if err != nil {
		jsonError(w, "failed to create task", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, created, http.StatusCreated)
}

func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.db.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, t, http.StatusOK)
}

// Cancel aborts an in-flight task. The worker records the interrupted run as
// failed; cancelling an already terminal task is a no-op.
func (h *TasksHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetTask(id); err != nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	h.queue.Cancel(id)
	w.WriteHeader(http.StatusAccepted)
}
