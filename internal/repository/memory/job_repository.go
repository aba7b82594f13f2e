// Package memory is an in-process Job Record Store. It backs tests and the
// single-process development mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"transcription-service/internal/entity"
	"transcription-service/internal/repository"
)

type JobRepository struct {
	mu          sync.RWMutex
	jobs        map[uuid.UUID]entity.Job
	transcripts map[uuid.UUID]entity.Transcript // keyed by job id
	now         func() time.Time
}

func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs:        map[uuid.UUID]entity.Job{},
		transcripts: map[uuid.UUID]entity.Transcript{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; tests use it to control ordering.
func (r *JobRepository) WithClock(now func() time.Time) *JobRepository {
	r.now = now
	return r
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := *job
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := r.now()
	j.Status = entity.StatusPending
	j.CreatedAt = now
	j.UpdatedAt = now
	r.jobs[j.ID] = j
	return &j, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &j, nil
}

func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string) ([]entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.Job, 0)
	for _, j := range r.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID.String() > out[b].ID.String()
	})
	return out, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if j.Status == status {
		return repository.ErrAlreadyInState
	}
	if !entity.CanTransition(j.Status, status) {
		return repository.ErrInvalidTransition
	}
	if status == entity.StatusCompleted {
		if _, ok := r.transcripts[id]; !ok {
			return repository.ErrTranscriptMissing
		}
	}

	j.Status = status
	j.UpdatedAt = r.now()
	r.jobs[id] = j
	return nil
}

func (r *JobRepository) AttachTranscript(ctx context.Context, jobID uuid.UUID, text, model string) (*entity.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := r.transcripts[jobID]; ok {
		return nil, repository.ErrTranscriptExists
	}
	if j.Status != entity.StatusProcessing {
		return nil, repository.ErrInvalidTransition
	}

	t := entity.Transcript{
		ID:        uuid.New(),
		JobID:     jobID,
		Text:      text,
		ModelUsed: model,
		CreatedAt: r.now(),
	}
	r.transcripts[jobID] = t
	return &t, nil
}

func (r *JobRepository) GetTranscript(ctx context.Context, jobID uuid.UUID) (*entity.Transcript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transcripts[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.jobs, id)
	delete(r.transcripts, id)
	return nil
}

func (r *JobRepository) ReconcileStale(ctx context.Context, cutoff time.Time) (repository.ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res repository.ReconcileResult
	now := r.now()
	for id, j := range r.jobs {
		if j.Status != entity.StatusProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		if _, ok := r.transcripts[id]; ok {
			j.Status = entity.StatusCompleted
			res.Completed++
		} else {
			j.Status = entity.StatusFailed
			res.Failed++
		}
		j.UpdatedAt = now
		r.jobs[id] = j
	}
	return res, nil
}
