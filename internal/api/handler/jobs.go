package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/finetunehub/internal/api/middleware"
	"github.com/kiranshivaraju/finetunehub/internal/api/response"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/kiranshivaraju/finetunehub/internal/training"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling file parts to disk.
const multipartMemory = 32 << 20

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, req training.SubmitRequest) (uuid.UUID, error)
	Details(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Claim(ctx context.Context, id, minerID uuid.UUID, systemDetails map[string]any) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	ListPending(ctx context.Context) ([]models.JobSummary, error)
	Status(ctx context.Context, id uuid.UUID) (models.JobStatus, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /submit-training.
func NewSubmitHandler(svc JobService, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}

		req, err := parseSubmission(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "Upload too large.")
				return
			}
			response.Error(w, http.StatusBadRequest, "Invalid form data.")
			return
		}

		jobID, err := svc.Submit(r.Context(), req)
		if err != nil {
			var ve *training.ValidationError
			if errors.As(err, &ve) {
				response.Error(w, http.StatusBadRequest, ve.Error())
				return
			}
			slog.Error("failed to submit training job", "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to submit training job.")
			return
		}

		response.JSON(w, map[string]any{
			"message": "Training job submitted successfully!",
			"jobId":   jobID,
		})
	}
}

// NewStartTrainingHandler returns an http.HandlerFunc for POST /start-training/{docId}.
// The optional JSON body describes the claiming miner's system.
func NewStartTrainingHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minerID, ok := mw.GetMinerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "Missing miner identity")
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "docId"))
		if err != nil {
			response.Message(w, http.StatusNotFound, "Job not found or failed to start")
			return
		}

		systemDetails := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&systemDetails); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		job, err := svc.Claim(r.Context(), jobID, minerID, systemDetails)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Message(w, http.StatusNotFound, "Job not found or failed to start")
		case errors.Is(err, store.ErrConflict):
			response.Error(w, http.StatusConflict, "Job is no longer pending")
		case err != nil:
			slog.Error("failed to start training job", "job_id", jobID, "miner_id", minerID, "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to start training job")
		default:
			response.JSON(w, job)
		}
	}
}

// NewUpdateStatusHandler returns an http.HandlerFunc for PATCH /update-status/{docId}.
func NewUpdateStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "docId")

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Status) == "" {
			response.Error(w, http.StatusBadRequest, "Status is required.")
			return
		}

		jobID, err := uuid.Parse(docID)
		if err != nil {
			response.Message(w, http.StatusNotFound, "Job not found")
			return
		}

		err = svc.UpdateStatus(r.Context(), jobID, models.JobStatus(req.Status))
		switch {
		case errors.Is(err, training.ErrInvalidStatus):
			response.Error(w, http.StatusBadRequest, fmt.Sprintf("Invalid status %q.", req.Status))
		case errors.Is(err, store.ErrNotFound):
			response.Message(w, http.StatusNotFound, "Job not found")
		case err != nil:
			slog.Error("failed to update job status", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to update job status")
		default:
			response.Message(w, http.StatusOK, fmt.Sprintf("Status updated to %s for job %s", req.Status, docID))
		}
	}
}

// NewPendingJobsHandler returns an http.HandlerFunc for GET /pending-jobs.
func NewPendingJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := svc.ListPending(r.Context())
		if err != nil {
			slog.Error("failed to fetch pending jobs", "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to fetch pending jobs")
			return
		}
		response.JSON(w, jobs)
	}
}

// NewJobDetailsHandler returns an http.HandlerFunc for GET /job-details/{docId}.
func NewJobDetailsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "docId"))
		if err != nil {
			response.Message(w, http.StatusNotFound, "Job not found")
			return
		}

		job, err := svc.Details(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Message(w, http.StatusNotFound, "Job not found")
			return
		}
		if err != nil {
			slog.Error("failed to fetch job details", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to fetch job details")
			return
		}
		response.JSON(w, job)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /job-status/{docId}.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "docId"))
		if err != nil {
			response.Message(w, http.StatusNotFound, "Job not found")
			return
		}

		status, err := svc.Status(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Message(w, http.StatusNotFound, "Job not found")
			return
		}
		if err != nil {
			slog.Error("failed to fetch job status", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to fetch job status")
			return
		}
		response.JSON(w, map[string]any{"jobId": jobID, "status": status})
	}
}

// parseSubmission reads the hyperparameter fields and optional files of a
// submission. Both multipart and urlencoded bodies are accepted.
func parseSubmission(r *http.Request) (training.SubmitRequest, error) {
	var req training.SubmitRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return req, err
		}
	} else if err := r.ParseForm(); err != nil {
		return req, err
	}

	hp := &req.Hyperparameters
	fields := map[string]*string{
		"baseModel":              &hp.BaseModel,
		"batchSize":              &hp.BatchSize,
		"learningRateMultiplier": &hp.LearningRateMultiplier,
		"numberOfEpochs":         &hp.NumberOfEpochs,
		"fineTuningType":         &hp.FineTuningType,
		"huggingFaceId":          &hp.HuggingFaceID,
		"suffix":                 &hp.Suffix,
		"seed":                   &hp.Seed,
	}

	params := map[string]any{}
	for key, values := range r.PostForm {
		if len(values) == 0 {
			continue
		}
		if dst, ok := fields[key]; ok {
			*dst = values[0]
			continue
		}
		// params[name]=value nests into the params map.
		name := key
		if strings.HasPrefix(key, "params[") && strings.HasSuffix(key, "]") {
			name = key[len("params[") : len(key)-1]
		}
		if len(values) == 1 {
			params[name] = values[0]
		} else {
			params[name] = append([]string(nil), values...)
		}
	}
	req.Params = params

	if r.MultipartForm != nil {
		var err error
		if req.TrainingFile, err = readFormFile(r.MultipartForm, "trainingFile"); err != nil {
			return req, err
		}
		if req.ValidationFile, err = readFormFile(r.MultipartForm, "validationFile"); err != nil {
			return req, err
		}
	}
	return req, nil
}

func readFormFile(form *multipart.Form, field string) (*training.File, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	fh := headers[0]

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &training.File{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}
