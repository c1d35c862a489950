package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

const jobColumns = `id, base_model, batch_size, learning_rate_multiplier, number_of_epochs,
	fine_tuning_type, hugging_face_id, suffix, seed, params, status,
	training_file_path, validation_file_path, script_path,
	miner_id, system_details, claimed_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

// CreateJob inserts a pending job. The database assigns ID and CreatedAt,
// which are written back into job.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	params := job.Params
	if params == nil {
		params = map[string]any{}
	}
	hp := job.Hyperparameters

	err := s.pool.QueryRow(ctx,
		`INSERT INTO fine_tuning_jobs (base_model, batch_size, learning_rate_multiplier, number_of_epochs,
		   fine_tuning_type, hugging_face_id, suffix, seed, params, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		hp.BaseModel, hp.BatchSize, hp.LearningRateMultiplier, hp.NumberOfEpochs,
		hp.FineTuningType, hp.HuggingFaceID, hp.Suffix, hp.Seed, params, models.JobStatusPending,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	job.Status = models.JobStatusPending
	job.Params = params
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM fine_tuning_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobsByStatus returns an empty, non-nil slice when nothing matches.
func (s *PostgresStore) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.JobSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fine_tuning_type FROM fine_tuning_jobs WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	jobs := []models.JobSummary{}
	for rows.Next() {
		var js models.JobSummary
		if err := rows.Scan(&js.ID, &js.FineTuningType); err != nil {
			return nil, fmt.Errorf("scan job summary: %w", err)
		}
		jobs = append(jobs, js)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) UpdateJobPaths(ctx context.Context, id uuid.UUID, paths models.ArtifactPaths) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fine_tuning_jobs
		 SET training_file_path = $2, validation_file_path = $3, script_path = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, paths.TrainingFilePath, paths.ValidationFilePath, paths.ScriptPath)
	if err != nil {
		return fmt.Errorf("update job paths: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus sets status unconditionally. Any status may follow any other.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fine_tuning_jobs SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimJob moves a pending job to claimed and binds it to minerID in a single
// conditional update, so at most one miner wins. A job that exists but is no
// longer pending yields ErrConflict.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, minerID uuid.UUID, systemDetails map[string]any) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE fine_tuning_jobs
		 SET status = $3, miner_id = $2, system_details = $4, claimed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $5
		 RETURNING `+jobColumns,
		id, minerID, models.JobStatusClaimed, systemDetails, models.JobStatusPending)
	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fine_tuning_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check job exists: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrConflict
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.BaseModel, &j.BatchSize, &j.LearningRateMultiplier, &j.NumberOfEpochs,
		&j.FineTuningType, &j.HuggingFaceID, &j.Suffix, &j.Seed, &j.Params, &j.Status,
		&j.TrainingFilePath, &j.ValidationFilePath, &j.ScriptPath,
		&j.MinerID, &j.SystemDetails, &j.ClaimedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Miners ---

func (s *PostgresStore) CreateMiner(ctx context.Context, miner *models.Miner) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO miners (ethereum_address, username, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		miner.EthereumAddress, miner.Username, miner.Email, miner.PasswordHash,
	).Scan(&miner.ID, &miner.CreatedAt)
	if err != nil {
		return fmt.Errorf("create miner: %w", err)
	}
	return nil
}

// GetMinerByUsername returns the oldest miner with the given username.
// Usernames are not unique at the data layer.
func (s *PostgresStore) GetMinerByUsername(ctx context.Context, username string) (*models.Miner, error) {
	var m models.Miner
	err := s.pool.QueryRow(ctx,
		`SELECT id, ethereum_address, username, email, password_hash, created_at
		 FROM miners WHERE username = $1 ORDER BY created_at LIMIT 1`, username,
	).Scan(&m.ID, &m.EthereumAddress, &m.Username, &m.Email, &m.PasswordHash, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get miner by username: %w", err)
	}
	return &m, nil
}
