package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrConflict = errors.New("resource state conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.JobSummary, error)
	UpdateJobPaths(ctx context.Context, id uuid.UUID, paths models.ArtifactPaths) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	ClaimJob(ctx context.Context, id uuid.UUID, minerID uuid.UUID, systemDetails map[string]any) (*models.Job, error)

	CreateMiner(ctx context.Context, miner *models.Miner) error
	GetMinerByUsername(ctx context.Context, username string) (*models.Miner, error)
}
