package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"transcription-service/internal/entity"
	"transcription-service/internal/repository"
)

// Admission and lookup errors. Ownership mismatches are reported as
// ErrJobNotFound so callers cannot probe for other owners' jobs.
var (
	ErrMissingFile          = errors.New("missing file")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFileTooLarge         = errors.New("file too large")
	ErrJobNotFound          = errors.New("job not found")
	ErrTranscriptNotFound   = errors.New("transcript not found or not completed")
)

// JobRepository is the part of the Job Record Store the API needs
// (implementations: postgresql.JobRepository, memory.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) (*entity.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]entity.Job, error)
	GetTranscript(ctx context.Context, jobID uuid.UUID) (*entity.Transcript, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobQueue only sends; the API never reads dispatch messages.
type JobQueue interface {
	Enqueue(ctx context.Context, msg entity.DispatchMessage) error
}

// MediaRemover deletes stored uploads (implementation: storage.Store).
type MediaRemover interface {
	Remove(ctx context.Context, path string) error
}

type Limits struct {
	MaxFileSizeBytes  int64
	AcceptedMimeTypes []string
}

type JobService struct {
	repo     JobRepository
	queue    JobQueue
	media    MediaRemover
	limits   Limits
	accepted map[string]struct{}
	log      *slog.Logger
}

func NewJobService(repo JobRepository, queue JobQueue, media MediaRemover, limits Limits, log *slog.Logger) *JobService {
	accepted := make(map[string]struct{}, len(limits.AcceptedMimeTypes))
	for _, m := range limits.AcceptedMimeTypes {
		accepted[m] = struct{}{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &JobService{
		repo:     repo,
		queue:    queue,
		media:    media,
		limits:   limits,
		accepted: accepted,
		log:      log,
	}
}

// MaxFileSizeBytes is the upload ceiling; upload handlers use it to stop
// reading early.
func (s *JobService) MaxFileSizeBytes() int64 {
	return s.limits.MaxFileSizeBytes
}

// UploadRequest describes media the upload handler has already stored.
type UploadRequest struct {
	OwnerID    string
	Filename   string
	MimeType   string
	SizeBytes  int64
	StoredPath string
}

// Upload admits a stored upload: it validates it, records a PENDING job and
// sends the dispatch message. It returns as soon as the job exists; the
// worker's outcome is only ever visible through the store.
func (s *JobService) Upload(ctx context.Context, req UploadRequest) (*entity.Job, error) {
	if req.StoredPath == "" {
		return nil, ErrMissingFile
	}
	if err := s.validate(req); err != nil {
		s.discard(ctx, req.StoredPath)
		return nil, err
	}

	job, err := s.repo.Create(ctx, &entity.Job{
		OwnerID:    req.OwnerID,
		Filename:   req.Filename,
		MimeType:   req.MimeType,
		StoredPath: req.StoredPath,
		SizeBytes:  req.SizeBytes,
	})
	if err != nil {
		s.discard(ctx, req.StoredPath)
		return nil, fmt.Errorf("create job: %w", err)
	}

	msg := entity.DispatchMessage{JobID: job.ID.String(), StoredPath: job.StoredPath}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		// The job stays PENDING; nothing retries it.
		s.log.Error("dispatch failed", "job_id", job.ID.String(), "error", err)
	} else {
		s.log.Info("job dispatched", "job_id", job.ID.String(), "owner_id", job.OwnerID, "size_bytes", job.SizeBytes)
	}
	return job, nil
}

func (s *JobService) validate(req UploadRequest) error {
	if _, ok := s.accepted[req.MimeType]; !ok {
		return ErrUnsupportedMediaType
	}
	if s.limits.MaxFileSizeBytes > 0 && req.SizeBytes > s.limits.MaxFileSizeBytes {
		return ErrFileTooLarge
	}
	return nil
}

func (s *JobService) discard(ctx context.Context, path string) {
	if err := s.media.Remove(ctx, path); err != nil {
		s.log.Warn("could not remove stored media", "path", path, "error", err)
	}
}

// JobDetails is a job plus its transcript, which is only set when the job
// is COMPLETED.
type JobDetails struct {
	Job        entity.Job
	Transcript *entity.Transcript
}

func (s *JobService) ListJobs(ctx context.Context, ownerID string) ([]entity.Job, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *JobService) GetJob(ctx context.Context, ownerID string, id uuid.UUID) (*JobDetails, error) {
	job, err := s.ownedJob(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	d := &JobDetails{Job: *job}
	if job.Status == entity.StatusCompleted {
		t, err := s.repo.GetTranscript(ctx, id)
		switch {
		case err == nil:
			d.Transcript = t
		case errors.Is(err, repository.ErrNotFound):
			// deleted between the two reads
			return nil, ErrJobNotFound
		default:
			return nil, err
		}
	}
	return d, nil
}

func (s *JobService) GetTranscript(ctx context.Context, ownerID string, id uuid.UUID) (*entity.Transcript, error) {
	job, err := s.ownedJob(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}
	if job.Status != entity.StatusCompleted {
		return nil, ErrTranscriptNotFound
	}

	t, err := s.repo.GetTranscript(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}
	return t, nil
}

// DeleteJob removes the record (and with it the transcript) before the
// media. A worker still holding the file open keeps reading; its later
// writes hit ErrNotFound.
func (s *JobService) DeleteJob(ctx context.Context, ownerID string, id uuid.UUID) error {
	job, err := s.ownedJob(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	s.discard(ctx, job.StoredPath)

	s.log.Info("job deleted", "job_id", id.String(), "owner_id", ownerID)
	return nil
}

func (s *JobService) ownedJob(ctx context.Context, ownerID string, id uuid.UUID) (*entity.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, ErrJobNotFound
	}
	return job, nil
}
