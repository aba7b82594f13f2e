package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"transcription-service/internal/entity"
	"transcription-service/internal/service"
)

// Source is the receiving side of the dispatch queue.
type Source interface {
	Receive(ctx context.Context, timeout time.Duration) (entity.DispatchMessage, error)
}

type Handler interface {
	Process(ctx context.Context, msg entity.DispatchMessage) error
}

type Pool struct {
	source      Source
	handler     Handler
	workers     int
	pollTimeout time.Duration
	log         *slog.Logger
}

func NewPool(source Source, handler Handler, workers int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		source:      source,
		handler:     handler,
		workers:     workers,
		pollTimeout: 5 * time.Second,
		log:         log.With("component", "pool"),
	}
}

// Run receives messages until ctx is cancelled, then waits for in-flight
// jobs to settle. Cancellation reaches their transcription calls, so they
// end up FAILED.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started", "workers", p.workers)

	msgCh := make(chan entity.DispatchMessage)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range msgCh {
				// Errors are already logged and reflected in the job status.
				_ = p.handler.Process(ctx, msg)
			}
		}()
	}

	defer func() {
		close(msgCh)
		wg.Wait()
		p.log.Info("worker pool stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := p.source.Receive(ctx, p.pollTimeout)
		if err != nil {
			if errors.Is(err, service.ErrNoMessage) || ctx.Err() != nil {
				continue
			}
			p.log.Error("receive", "error", err)
			// avoid spinning on a broken connection
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case msgCh <- msg:
		case <-ctx.Done():
			// Already removed from the queue: at-most-once means it is lost.
			p.log.Warn("dropping message on shutdown", "job_id", msg.JobID)
			return
		}
	}
}
