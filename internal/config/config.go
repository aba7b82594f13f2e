// Package config reads process configuration from the environment once at
// startup. The resulting Config is passed by value into constructors.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	LogLevel slog.Level

	StoreBackend string // postgres | memory
	PostgresDSN  string

	QueueBackend  string // redis | memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisQueueKey string
	QueueBuffer   int

	MediaBackend   string // local | minio
	MediaDir       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	MinioBucket    string

	MaxFileSizeBytes  int64
	AcceptedMimeTypes []string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	WhisperModel      string
	TranscribeTimeout time.Duration

	Workers        int
	ReaperInterval time.Duration
	StaleAfter     time.Duration

	AuthHeader string
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	cfg := Config{
		HTTPAddr: e.stringOr("HTTP_ADDR", ":8080"),
		LogLevel: parseLevel(getenv("LOG_LEVEL")),

		StoreBackend: strings.ToLower(e.stringOr("STORE_BACKEND", "postgres")),
		PostgresDSN:  getenv("POSTGRES_DSN"),

		QueueBackend:  strings.ToLower(e.stringOr("QUEUE_BACKEND", "redis")),
		RedisAddr:     e.stringOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		RedisDB:       e.intOr("REDIS_DB", 0),
		RedisQueueKey: e.stringOr("REDIS_QUEUE_KEY", "transcription:jobs"),
		QueueBuffer:   e.intOr("QUEUE_BUFFER", 256),

		MediaBackend:   strings.ToLower(e.stringOr("MEDIA_BACKEND", "local")),
		MediaDir:       e.stringOr("MEDIA_DIR", "uploads"),
		MinioEndpoint:  e.stringOr("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    strings.EqualFold(getenv("MINIO_USE_SSL"), "true"),
		MinioRegion:    getenv("MINIO_REGION"),
		MinioBucket:    e.stringOr("MINIO_BUCKET", "videos"),

		MaxFileSizeBytes:  e.int64Or("MAX_FILE_SIZE_BYTES", 100<<20),
		AcceptedMimeTypes: splitList(e.stringOr("ACCEPTED_MIME_TYPES", "video/mp4")),

		OpenAIAPIKey:      getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getenv("OPENAI_BASE_URL"),
		WhisperModel:      e.stringOr("OPENAI_WHISPER_MODEL", "whisper-1"),
		TranscribeTimeout: e.durationOr("TRANSCRIBE_TIMEOUT", 10*time.Minute),

		Workers:        e.intOr("WORKERS", 4),
		ReaperInterval: e.durationOr("REAPER_INTERVAL", time.Minute),
		StaleAfter:     e.durationOr("STALE_AFTER", 0),

		AuthHeader: e.stringOr("AUTH_HEADER", "X-User-ID"),
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 2 * cfg.TranscribeTimeout
	}

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.errs, "; "))
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []string

	switch c.StoreBackend {
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN is required for STORE_BACKEND=postgres")
		}
	case "memory":
	default:
		errs = append(errs, "unknown STORE_BACKEND "+c.StoreBackend)
	}
	switch c.QueueBackend {
	case "redis", "memory":
	default:
		errs = append(errs, "unknown QUEUE_BACKEND "+c.QueueBackend)
	}
	switch c.MediaBackend {
	case "local":
	case "minio":
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			errs = append(errs, "MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for MEDIA_BACKEND=minio")
		}
	default:
		errs = append(errs, "unknown MEDIA_BACKEND "+c.MediaBackend)
	}
	if c.MaxFileSizeBytes <= 0 {
		errs = append(errs, "MAX_FILE_SIZE_BYTES must be positive")
	}
	if len(c.AcceptedMimeTypes) == 0 {
		errs = append(errs, "ACCEPTED_MIME_TYPES must not be empty")
	}
	if c.StaleAfter <= c.TranscribeTimeout {
		// otherwise the reaper would fail jobs that are still running
		errs = append(errs, "STALE_AFTER must exceed TRANSCRIBE_TIMEOUT")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RequireTranscriber checks the settings only the worker needs.
func (c Config) RequireTranscriber() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required")
	}
	return nil
}

type env struct {
	get  func(string) string
	errs []string
}

func (e *env) stringOr(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) intOr(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return i
}

func (e *env) int64Or(key string, def int64) int64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return i
}

func (e *env) durationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password in a URL-style DSN: user:pass@ -> user:****@.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
