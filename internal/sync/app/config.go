package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseFile string // Optional: path to SQLite database file (default: ./fieldsync.db)
	BlobDir      string // Optional: root directory for the blob store (default: ./blobs)
	JWTSecret    string // Required: HMAC secret shared with the identity provider
	Issuer       string // Optional: expected issuer claim on access tokens

	TemplateWorkerInterval time.Duration // Template worker tick interval (default: 8s)
	TemplateWorkerBatch    int           // Pending records drained per tick (default: 16)
	IdentifyThreshold      float64       // Cosine similarity match threshold (default: 0.75)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile: getEnvOrDefault("SYNC_DATABASE_FILE", "fieldsync.db"),
		BlobDir:      getEnvOrDefault("SYNC_BLOB_DIR", "blobs"),
		JWTSecret:    os.Getenv("SYNC_JWT_SECRET"),
		Issuer:       getEnvOrDefault("SYNC_ISSUER", "fieldsync"),

		TemplateWorkerInterval: getEnvDurationOrDefault("TEMPLATE_WORKER_INTERVAL", 8*time.Second),
		TemplateWorkerBatch:    getEnvIntOrDefault("TEMPLATE_WORKER_BATCH", 16),
		IdentifyThreshold:      getEnvFloatOrDefault("IDENTIFY_THRESHOLD", 0.75),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
