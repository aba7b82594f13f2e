// Package bootstrap turns a config.Config into the concrete collaborators
// shared by cmd/api and cmd/worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"transcription-service/internal/config"
	"transcription-service/internal/repository/memory"
	"transcription-service/internal/repository/postgresql"
	"transcription-service/internal/service"
	"transcription-service/internal/storage"
	"transcription-service/internal/transcription"
	"transcription-service/internal/worker"
)

// JobStore is everything the API, the worker and the reaper need from the
// Job Record Store.
type JobStore interface {
	service.JobRepository
	worker.JobRepo
	worker.StaleReconciler
}

func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// OpenStore returns the store and a function releasing its resources.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (JobStore, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory job store; data is lost on restart")
		return memory.NewJobRepository(), func() {}, nil
	default:
		pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("pg: %w", err)
		}
		if err := postgresql.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("postgres connected", "dsn", config.RedactDSN(cfg.PostgresDSN))
		return postgresql.NewJobRepository(pool), pool.Close, nil
	}
}

func OpenQueue(ctx context.Context, cfg config.Config, log *slog.Logger) (service.Queue, func(), error) {
	switch cfg.QueueBackend {
	case "memory":
		return service.NewChannelQueue(cfg.QueueBuffer), func() {}, nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		log.Info("redis connected", "addr", cfg.RedisAddr, "queue_key", cfg.RedisQueueKey)
		return service.NewRedisQueue(rdb, cfg.RedisQueueKey), func() { _ = rdb.Close() }, nil
	}
}

func OpenMedia(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.MediaBackend {
	case "minio":
		client, err := storage.NewMinioClient(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
			Bucket:    cfg.MinioBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return storage.NewMinioStore(ctx, client, cfg.MinioBucket, cfg.MinioRegion)
	default:
		return storage.NewLocalStore(cfg.MediaDir)
	}
}

func NewProcessor(cfg config.Config, store JobStore, media storage.Store, log *slog.Logger) *worker.Processor {
	client := transcription.NewOpenAIClient(transcription.OpenAIConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
	})
	return worker.NewProcessor(store, media, client, worker.ProcessorConfig{
		Model:   cfg.WhisperModel,
		Timeout: cfg.TranscribeTimeout,
	}, log)
}
