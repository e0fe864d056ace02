package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration parsed from environment variables.
type Config struct {
	HTTPAddr          string
	MongoURI          string
	MongoDatabase     string
	ShutdownTimeout   time.Duration
	MetricsFlushDelay time.Duration
	CORSOrigins       []string
}

// FromEnv builds Config with defaults, overridden by environment variables.
// A .env file in the working directory is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:          envOrDefault("HTTP_ADDR", ":8080"),
		MongoURI:          envOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     envOrDefault("MONGODB_DATABASE", "abandoned"),
		ShutdownTimeout:   envDuration("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
		MetricsFlushDelay: envMillis("METRICS_FLUSH_DELAY_MS", time.Second),
		CORSOrigins:       envList("CORS_ORIGINS"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		seconds, err := strconv.Atoi(v)
		if err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		millis, err := strconv.Atoi(v)
		if err == nil {
			return time.Duration(millis) * time.Millisecond
		}
	}
	return def
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
