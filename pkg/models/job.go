// Package models contains shared data models used across the finetunehub codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a fine-tuning job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusClaimed    JobStatus = "claimed"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses. Transitions between
// statuses are not checked anywhere.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusClaimed, JobStatusInProgress, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Hyperparameters are the training settings submitted with a job, stored as
// received. Empty fields fall back to defaults only when the script is rendered.
type Hyperparameters struct {
	BaseModel              string `json:"baseModel,omitempty"`
	BatchSize              string `json:"batchSize,omitempty"`
	LearningRateMultiplier string `json:"learningRateMultiplier,omitempty"`
	NumberOfEpochs         string `json:"numberOfEpochs,omitempty"`
	FineTuningType         string `json:"fineTuningType,omitempty"`
	HuggingFaceID          string `json:"huggingFaceId,omitempty"`
	Suffix                 string `json:"suffix,omitempty"`
	Seed                   string `json:"seed,omitempty"`
}

// ArtifactPaths are object-store keys of a job's files. An empty string means
// the artifact was not uploaded.
type ArtifactPaths struct {
	TrainingFilePath   string `json:"trainingFilePath"`
	ValidationFilePath string `json:"validationFilePath"`
	ScriptPath         string `json:"scriptPath"`
}

// ArtifactURLs are signed download links computed on read. They are never stored.
type ArtifactURLs struct {
	TrainingFileURL   string `json:"trainingFileUrl,omitempty"`
	ValidationFileURL string `json:"validationFileUrl,omitempty"`
	ScriptURL         string `json:"scriptUrl,omitempty"`
}

// Job is a fine-tuning job record. Params carries every submitted field that
// is not one of the known hyperparameters.
type Job struct {
	ID uuid.UUID `db:"id" json:"id"`
	Hyperparameters
	Params        map[string]any `db:"params"         json:"params,omitempty"`
	Status        JobStatus      `db:"status"         json:"status"`
	ArtifactPaths
	MinerID       *uuid.UUID     `db:"miner_id"       json:"minerId,omitempty"`
	SystemDetails map[string]any `db:"system_details" json:"systemDetails,omitempty"`
	ClaimedAt     *time.Time     `db:"claimed_at"     json:"claimedAt,omitempty"`
	CreatedAt     time.Time      `db:"created_at"     json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at"     json:"updatedAt"`
	ArtifactURLs
}

// JobSummary is the listing view handed to miners polling for work.
type JobSummary struct {
	ID             uuid.UUID `json:"id"`
	FineTuningType string    `json:"fineTuningType"`
}
