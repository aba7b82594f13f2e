package worker

import (
	"context"
	"log/slog"
	"time"

	"transcription-service/internal/repository"
)

type StaleReconciler interface {
	ReconcileStale(ctx context.Context, cutoff time.Time) (repository.ReconcileResult, error)
}

// Reaper settles jobs a crashed worker left in PROCESSING: those with a
// transcript become COMPLETED, the rest FAILED.
type Reaper struct {
	repo       StaleReconciler
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func NewReaper(repo StaleReconciler, interval, staleAfter time.Duration, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		repo:       repo,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log.With("component", "reaper"),
	}
}

func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info("reaper disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Sweep(ctx)
		}
	}
}

func (r *Reaper) Sweep(ctx context.Context) (repository.ReconcileResult, error) {
	res, err := r.repo.ReconcileStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		r.log.Error("reconcile stale jobs", "error", err)
		return res, err
	}
	if res.Completed > 0 || res.Failed > 0 {
		r.log.Warn("reconciled stale jobs", "completed", res.Completed, "failed", res.Failed)
	}
	return res, nil
}
