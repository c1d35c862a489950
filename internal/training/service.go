// Package training turns submitted fine-tuning requests into stored jobs,
// artifacts and queue messages, and serves the job lifecycle to miners.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/artifact"
	"github.com/kiranshivaraju/finetunehub/internal/cache"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// Publisher is the publishing half of queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, msg models.JobMessage) error
}

// File is an uploaded artifact. A nil Data means the upload carried no buffer.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

type SubmitRequest struct {
	Hyperparameters models.Hyperparameters
	Params          map[string]any
	TrainingFile    *File
	ValidationFile  *File
}

// Service orchestrates job submission and the miner-facing job lifecycle.
type Service struct {
	store     store.Store
	artifacts artifact.Store
	queue     Publisher
	cache     cache.Cache
	urlTTL    time.Duration
	now       func() time.Time
}

// NewService creates a new Service. urlTTL is the lifetime of signed artifact links.
func NewService(st store.Store, artifacts artifact.Store, q Publisher, ca cache.Cache, urlTTL time.Duration) *Service {
	return &Service{
		store:     st,
		artifacts: artifacts,
		queue:     q,
		cache:     ca,
		urlTTL:    urlTTL,
		now:       time.Now,
	}
}

// Submit stores a pending job with its artifacts and announces it on the
// queue. The steps are not atomic: a failed upload leaves the job record in
// place without paths, and a failed publish leaves a complete record that no
// listener was told about.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	script, err := RenderScript(req.Hyperparameters)
	if err != nil {
		return uuid.Nil, err
	}

	job := &models.Job{
		Hyperparameters: req.Hyperparameters,
		Params:          req.Params,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("creating job: %w", err)
	}
	s.cacheStatus(ctx, job.ID, models.JobStatusPending)

	var paths models.ArtifactPaths
	if req.TrainingFile != nil {
		paths.TrainingFilePath = TrainingFilePath(job.ID, req.TrainingFile.Filename)
	}
	if req.ValidationFile != nil {
		paths.ValidationFilePath = ValidationFilePath(job.ID, req.ValidationFile.Filename)
	}
	paths.ScriptPath = ScriptPath(job.ID, s.now())

	if req.TrainingFile != nil {
		if err := s.artifacts.Save(ctx, paths.TrainingFilePath, req.TrainingFile.Data, req.TrainingFile.ContentType); err != nil {
			return uuid.Nil, fmt.Errorf("uploading training file: %w", err)
		}
	}
	if req.ValidationFile != nil {
		if err := s.artifacts.Save(ctx, paths.ValidationFilePath, req.ValidationFile.Data, req.ValidationFile.ContentType); err != nil {
			return uuid.Nil, fmt.Errorf("uploading validation file: %w", err)
		}
	}
	if err := s.artifacts.Save(ctx, paths.ScriptPath, script, ScriptContentType); err != nil {
		return uuid.Nil, fmt.Errorf("uploading training script: %w", err)
	}

	if err := s.store.UpdateJobPaths(ctx, job.ID, paths); err != nil {
		return uuid.Nil, fmt.Errorf("linking artifacts: %w", err)
	}

	msg := models.JobMessage{
		JobID:          job.ID,
		FineTuningType: req.Hyperparameters.FineTuningType,
		Status:         models.JobStatusPending,
		ModelID:        req.Hyperparameters.BaseModel,
		Params:         job.Params,
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		return job.ID, fmt.Errorf("publishing job %s: %w", job.ID, err)
	}

	slog.Info("training job submitted", "job_id", job.ID, "base_model", req.Hyperparameters.BaseModel)
	return job.ID, nil
}

// Details returns the job with a signed link for every stored artifact.
// Any signing failure fails the whole read.
func (s *Service) Details(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolveURLs(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Claim binds a pending job to minerID. Only one claim on a job succeeds;
// later ones get store.ErrConflict.
func (s *Service) Claim(ctx context.Context, id, minerID uuid.UUID, systemDetails map[string]any) (*models.Job, error) {
	job, err := s.store.ClaimJob(ctx, id, minerID, systemDetails)
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, id, job.Status)

	if err := s.resolveURLs(ctx, job); err != nil {
		return nil, err
	}
	slog.Info("job claimed", "job_id", id, "miner_id", minerID)
	return job, nil
}

// UpdateStatus sets a job's status. Any known status is accepted from any
// other; ordering is not enforced.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.store.UpdateJobStatus(ctx, id, status); err != nil {
		return err
	}
	s.cacheStatus(ctx, id, status)
	return nil
}

// ListPending returns summaries of every pending job, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]models.JobSummary, error) {
	jobs, err := s.store.ListJobsByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	if jobs == nil {
		jobs = []models.JobSummary{}
	}
	return jobs, nil
}

// Status returns a job's status, preferring the cache.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (models.JobStatus, error) {
	status, found, err := s.cache.GetJobStatus(ctx, id)
	if err == nil && found {
		return status, nil
	}
	if err != nil {
		slog.Warn("job status cache read failed", "job_id", id, "error", err)
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, id, job.Status)
	return job.Status, nil
}

// cacheStatus records status for reads through Status. When the write fails
// the cached entry is dropped so reads fall through to the store.
func (s *Service) cacheStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) {
	err := s.cache.SetJobStatus(ctx, id, status, statusCacheTTL)
	if err == nil {
		return
	}
	slog.Warn("job status cache write failed", "job_id", id, "status", status, "error", err)
	if err := s.cache.DeleteJobStatus(ctx, id); err != nil {
		slog.Warn("job status cache evict failed", "job_id", id, "error", err)
	}
}

func (s *Service) resolveURLs(ctx context.Context, job *models.Job) error {
	sign := func(path string, dst *string) error {
		if path == "" {
			return nil
		}
		u, err := s.artifacts.SignedURL(ctx, path, s.urlTTL)
		if err != nil {
			return fmt.Errorf("signing %s: %w", path, err)
		}
		*dst = u
		return nil
	}
	return errors.Join(
		sign(job.TrainingFilePath, &job.TrainingFileURL),
		sign(job.ValidationFilePath, &job.ValidationFileURL),
		sign(job.ScriptPath, &job.ScriptURL),
	)
}
