// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"transcription-service/internal/bootstrap"
	"transcription-service/internal/config"
	"transcription-service/internal/service"
	httptransport "transcription-service/internal/transport/http"
	"transcription-service/internal/worker"
)

// @title Transcription Service API
// @version 1.0
// @description Upload videos and fetch their transcripts.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
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

	var bg sync.WaitGroup

	// With an in-process queue nobody else can consume dispatch messages,
	// so the worker pool and reaper run here.
	if cfg.QueueBackend == "memory" {
		if err := cfg.RequireTranscriber(); err != nil {
			log.Fatal(err)
		}
		processor := bootstrap.NewProcessor(cfg, store, media, logger)
		bg.Add(2)
		go func() {
			defer bg.Done()
			worker.NewPool(queue, processor, cfg.Workers, logger).Run(ctx)
		}()
		go func() {
			defer bg.Done()
			worker.NewReaper(store, cfg.ReaperInterval, cfg.StaleAfter, logger).Run(ctx)
		}()
	}

	svc := service.NewJobService(store, queue, media, service.Limits{
		MaxFileSizeBytes:  cfg.MaxFileSizeBytes,
		AcceptedMimeTypes: cfg.AcceptedMimeTypes,
	}, logger)
	handler := httptransport.NewHandler(svc, media, logger)
	owners := httptransport.HeaderOwnerResolver{Header: cfg.AuthHeader}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.Routes(handler, owners, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api started",
		"addr", cfg.HTTPAddr,
		"store_backend", cfg.StoreBackend,
		"queue_backend", cfg.QueueBackend,
		"media_backend", cfg.MediaBackend,
		"max_file_size_bytes", cfg.MaxFileSizeBytes,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "error", err)
	}

	bg.Wait()
	logger.Info("api stopped")
}
