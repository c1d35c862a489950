// Package mock provides an in-memory store.Store for tests.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// Store satisfies store.Store in memory. Set Err to fail every call.
type Store struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]models.Job
	miners []models.Miner

	Err error
}

func NewStore() *Store {
	return &Store{jobs: map[uuid.UUID]models.Job{}}
}

func (s *Store) Ping(context.Context) error { return s.Err }

func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job.ID = uuid.New()
	job.Status = models.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Params == nil {
		job.Params = map[string]any{}
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (s *Store) ListJobsByStatus(_ context.Context, status models.JobStatus) ([]models.JobSummary, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Job
	for _, j := range s.jobs {
		if j.Status == status {
			matched = append(matched, j)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].CreatedAt.Before(matched[b].CreatedAt) })

	out := make([]models.JobSummary, 0, len(matched))
	for _, j := range matched {
		out = append(out, models.JobSummary{ID: j.ID, FineTuningType: j.FineTuningType})
	}
	return out, nil
}

func (s *Store) UpdateJobPaths(_ context.Context, id uuid.UUID, paths models.ArtifactPaths) error {
	return s.update(id, func(j *models.Job) error {
		j.ArtifactPaths = paths
		return nil
	})
}

func (s *Store) UpdateJobStatus(_ context.Context, id uuid.UUID, status models.JobStatus) error {
	return s.update(id, func(j *models.Job) error {
		j.Status = status
		return nil
	})
}

func (s *Store) ClaimJob(_ context.Context, id uuid.UUID, minerID uuid.UUID, systemDetails map[string]any) (*models.Job, error) {
	var claimed models.Job
	err := s.update(id, func(j *models.Job) error {
		if j.Status != models.JobStatusPending {
			return store.ErrConflict
		}
		now := time.Now().UTC()
		j.Status = models.JobStatusClaimed
		j.MinerID = &minerID
		j.SystemDetails = systemDetails
		j.ClaimedAt = &now
		claimed = *j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (s *Store) update(id uuid.UUID, fn func(j *models.Job) error) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(&j); err != nil {
		return err
	}
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = j
	return nil
}

func (s *Store) CreateMiner(_ context.Context, miner *models.Miner) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	miner.ID = uuid.New()
	miner.CreatedAt = time.Now().UTC()
	s.miners = append(s.miners, *miner)
	return nil
}

func (s *Store) GetMinerByUsername(_ context.Context, username string) (*models.Miner, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.miners {
		if m.Username == username {
			m := m
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

// PutJob inserts job as-is, keeping its ID and status.
func (s *Store) PutJob(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
