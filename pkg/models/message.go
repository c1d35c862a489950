package models

import "github.com/google/uuid"

// JobMessage is published to the job queue once per submission.
type JobMessage struct {
	JobID          uuid.UUID      `json:"jobId"`
	FineTuningType string         `json:"fineTuningType"`
	Status         JobStatus      `json:"status"`
	ModelID        string         `json:"modelId"`
	Params         map[string]any `json:"params,omitempty"`
}
