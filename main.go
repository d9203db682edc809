package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dio-meetings/backend/internal/api"
	"github.com/dio-meetings/backend/internal/auth"
	"github.com/dio-meetings/backend/internal/config"
	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/minutes"
	"github.com/dio-meetings/backend/internal/speech"
	"github.com/dio-meetings/backend/internal/storage"
	"github.com/dio-meetings/backend/internal/task"
)

func main() {
	cfg := config.Load()

	// Ensure data directory exists
	os.MkdirAll(cfg.DataPath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Object storage
	store, err := storage.NewMinioStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Speech recognition backend
	var backend speech.Backend
	switch cfg.SpeechBackend {
	case "salute":
		backend = speech.NewSaluteBackend(cfg.SaluteAPIKey, cfg.SaluteScope)
	case "yandex":
		backend = speech.NewYandexBackend(cfg.YandexAPIKey)
	default:
		log.Fatalf("Unknown speech backend: %q", cfg.SpeechBackend)
	}
	log.Printf("Speech backend: %s", backend.Name())

	// Minutes generation
	generator := minutes.NewLLMGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	// Task pipeline
	processor := task.NewProcessor(database, store, backend, generator, cfg.DataPath)
	queue := task.NewQueue(database, processor, cfg.Workers)
	defer queue.Stop()
	log.Printf("Task queue started with %d workers", cfg.Workers)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Create router
	router := api.NewRouter(database, jwtService, cfg, store, queue)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Data path: %s", cfg.DataPath)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		queue.Stop()
		database.Close()
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
