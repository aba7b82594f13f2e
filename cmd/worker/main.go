// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"transcription-service/internal/bootstrap"
	"transcription-service/internal/config"
	"transcription-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireTranscriber(); err != nil {
		log.Fatal(err)
	}
	// A standalone worker only makes sense against shared state.
	if cfg.QueueBackend != "redis" || cfg.StoreBackend != "postgres" {
		log.Fatal("worker needs QUEUE_BACKEND=redis and STORE_BACKEND=postgres; use cmd/api for single-process mode")
	}

	logger := bootstrap.NewLogger(cfg)

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	queue, closeQueue, err := bootstrap.OpenQueue(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeQueue()

	media, err := bootstrap.OpenMedia(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	go worker.NewReaper(store, cfg.ReaperInterval, cfg.StaleAfter, logger).Run(ctx)

	processor := bootstrap.NewProcessor(cfg, store, media, logger)

	logger.Info("worker started",
		"workers", cfg.Workers,
		"model", cfg.WhisperModel,
		"timeout", cfg.TranscribeTimeout.String(),
		"media_backend", cfg.MediaBackend,
	)
	worker.NewPool(queue, processor, cfg.Workers, logger).Run(ctx)

	logger.Info("worker stopped")
}
