package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          int
	DataPath      string
	DBPath        string
	JWTSecret     string
	AdminUsername string
	AdminPassword string
	CORSOrigins   []string
	Workers       int

	// Object storage (S3-compatible)
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	// Speech recognition
	SpeechBackend string // "salute" or "yandex"
	SaluteAPIKey  string
	SaluteScope   string
	YandexAPIKey  string

	// Minutes generation (OpenAI-compatible endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

func Load() *Config {
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	dataPath := getEnv("DATA_PATH", "/data")

	workers, _ := strconv.Atoi(getEnv("WORKERS", "2"))
	if workers < 1 {
		workers = 1
	}

	// JWT secret: require explicit setting or generate random
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			log.Fatalf("Failed to generate random JWT secret: %v", err)
		}
		jwtSecret = hex.EncodeToString(b)
		log.Println("WARNING: JWT_SECRET not set, using random secret. Sessions will not survive restarts. Set JWT_SECRET env var for persistent sessions.")
	}

	// CORS origins: comma-separated list or "*" (default)
	corsOrigins := []string{"*"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		corsOrigins = make([]string, 0, len(origins))
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	return &Config{
		Port:          port,
		DataPath:      dataPath,
		DBPath:        getEnv("DB_PATH", dataPath+"/meetings.db"),
		JWTSecret:     jwtSecret,
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),
		CORSOrigins:   corsOrigins,
		Workers:       workers,

		S3Endpoint:  getEnv("S3_ENDPOINT", "storage.yandexcloud.net"),
		S3Bucket:    getEnv("S3_BUCKET", "dev-uploads-data"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:    getEnv("S3_USE_SSL", "true") == "true",

		SpeechBackend: getEnv("SPEECH_BACKEND", "salute"),
		SaluteAPIKey:  os.Getenv("SALUTE_API_KEY"),
		SaluteScope:   getEnv("SALUTE_SCOPE", "SALUTE_SPEECH_PERS"),
		YandexAPIKey:  os.Getenv("YANDEX_API_KEY"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://llm.api.cloud.yandex.net/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   getEnv("LLM_MODEL", "qwen3-235b-a22b-fp8"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
