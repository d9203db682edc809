package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dio-meetings/backend/internal/api/handlers"
	"github.com/dio-meetings/backend/internal/api/middleware"
	"github.com/dio-meetings/backend/internal/auth"
	"github.com/dio-meetings/backend/internal/config"
	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/storage"
	"github.com/dio-meetings/backend/internal/task"
)

func NewRouter(database *db.Database, jwtService *auth.JWTService, cfg *config.Config, store storage.ObjectStore, queue *task.Queue) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))

	// Handlers
	authHandler := handlers.NewAuthHandler(database, jwtService)
	meetingsHandler := handlers.NewMeetingsHandler(database, store, cfg.DataPath)
	tasksHandler := handlers.NewTasksHandler(database, queue)
	minutesHandler := handlers.NewMinutesHandler(database)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	jsonBody := middleware.MaxBodySize(1 << 20)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Auth (public, brute-force limited)
		r.With(loginLimiter.Handler, jsonBody).Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))

			r.Get("/auth/me", authHandler.Me)

			// Meetings
			r.Post("/meetings", meetingsHandler.Upload)
			r.Get("/meetings/{id}", meetingsHandler.Get)
			r.With(jsonBody).Patch("/meetings/{id}", meetingsHandler.Update)
			r.Delete("/meetings/{id}", meetingsHandler.Delete)
			r.Get("/meetings/{id}/transcript", meetingsHandler.Transcript)
			r.Get("/meetings/{id}/media-url", meetingsHandler.MediaURL)

			// Minutes
			r.Get("/meetings/{id}/minutes", minutesHandler.Get)
			r.Get("/meetings/{id}/minutes/download", minutesHandler.Download)

			// Tasks
			r.With(jsonBody).Post("/tasks", tasksHandler.Create)
			r.Get("/tasks/{id}", tasksHandler.Get)
			r.Delete("/tasks/{id}", tasksHandler.Cancel)
		})
	})

	return r
}
