package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"transcription-service/internal/entity"
	"transcription-service/internal/repository"
	"transcription-service/internal/transcription"
)

type JobRepo interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus) error
	AttachTranscript(ctx context.Context, jobID uuid.UUID, text, model string) (*entity.Transcript, error)
}

// MediaOpener gives read-only access to stored uploads (storage.Store).
type MediaOpener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type ProcessorConfig struct {
	Model   string
	Timeout time.Duration
}

// Processor runs one dispatch message through the job state machine. It
// keeps no state between messages.
type Processor struct {
	repo    JobRepo
	media   MediaOpener
	client  transcription.Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

func NewProcessor(repo JobRepo, media MediaOpener, client transcription.Client, cfg ProcessorConfig, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		repo:    repo,
		media:   media,
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log.With("component", "worker"),
	}
}

// ErrDropped wraps the reason a message was discarded before the job was
// claimed. Nothing was written for it.
var ErrDropped = errors.New("message dropped")

func (p *Processor) Process(ctx context.Context, msg entity.DispatchMessage) error {
	start := time.Now()

	id, err := uuid.Parse(msg.JobID)
	if err != nil {
		p.log.Error("bad job id", "job_id", msg.JobID, "error", err)
		return fmt.Errorf("%w: parse job id: %v", ErrDropped, err)
	}
	log := p.log.With("job_id", id.String())

	// PENDING -> PROCESSING. A missing, already claimed or finished job
	// means this message is stale or a replay.
	if err := p.repo.UpdateStatus(ctx, id, entity.StatusProcessing); err != nil {
		log.Warn("cannot claim job", "error", err)
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}
	log.Info("job processing", "stored_path", msg.StoredPath)

	// Terminal writes must land even if shutdown cancels ctx mid-call.
	wctx := context.WithoutCancel(ctx)

	text, err := p.transcribe(ctx, msg.StoredPath)
	if err == nil {
		_, err = p.repo.AttachTranscript(wctx, id, text, p.model)
		if err != nil {
			err = fmt.Errorf("attach transcript: %w", err)
		}
	}
	if err != nil {
		p.fail(wctx, log, id, start, err)
		return err
	}

	if err := p.repo.UpdateStatus(wctx, id, entity.StatusCompleted); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("job deleted while processing")
			return nil
		}
		log.Error("mark completed", "error", err)
		return err
	}

	log.Info("job completed",
		"model", p.model,
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) transcribe(ctx context.Context, path string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	rc, err := p.media.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer rc.Close()

	text, err := p.client.Transcribe(ctx, rc, filepath.Base(path), p.model)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, id uuid.UUID, start time.Time, cause error) {
	attrs := []any{
		"error", cause,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if kind := transcription.KindOf(cause); kind != 0 {
		attrs = append(attrs, "kind", kind.String())
	}
	log.Error("job failed", attrs...)

	if err := p.repo.UpdateStatus(ctx, id, entity.StatusFailed); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("job deleted while processing")
			return
		}
		log.Error("mark failed", "error", err)
	}
}
