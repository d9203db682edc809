package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dio-meetings/backend/internal/db"
)

type MinutesHandler struct {
	db       *db.Database
	markdown goldmark.Markdown
}

func NewMinutesHandler(database *db.Database) *MinutesHandler {
	return &MinutesHandler{
		db:       database,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (h *MinutesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetMeeting(id); err != nil {
		jsonError(w, "meeting not found", http.StatusNotFound)
		return
	}

	minutes, err := h.db.GetMinutesByMeeting(id)
	if err != nil {
		jsonError(w, "minutes not ready", http.StatusNotFound)
		return
	}
	jsonResponse(w, minutes, http.StatusOK)
}

// Download serves the minutes as a file attachment, either the raw markdown
// or rendered HTML (?format=html).
func (h *MinutesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	minutes, err := h.db.GetMinutesByMeeting(id)
	if err != nil {
		jsonError(w, "minutes not ready", http.StatusNotFound)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}

	switch format {
	case "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "minutes_"+id+".md"))
		w.Write([]byte(minutes.MDText))
	case "html":
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(minutes.MDText), &buf); err != nil {
			jsonError(w, "failed to render minutes", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "minutes_"+id+".html"))
		buf.WriteTo(w)
	default:
		jsonError(w, fmt.Sprintf("unsupported format: %q", format), http.StatusBadRequest)
	}
}
