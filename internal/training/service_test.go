package training

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/artifact"
	artifactmock "github.com/kiranshivaraju/finetunehub/internal/artifact/mock"
	cachemock "github.com/kiranshivaraju/finetunehub/internal/cache/mock"
	queuemock "github.com/kiranshivaraju/finetunehub/internal/queue/mock"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	storemock "github.com/kiranshivaraju/finetunehub/internal/store/mock"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc       *Service
	store     *storemock.Store
	artifacts *artifactmock.Store
	queue     *queuemock.Queue
	cache     *cachemock.Cache
}

func newFixture() *fixture {
	f := &fixture{
		store:     storemock.NewStore(),
		artifacts: artifactmock.NewStore(),
		queue:     queuemock.NewQueue(),
		cache:     cachemock.NewCache(),
	}
	f.svc = NewService(f.store, f.artifacts, f.queue, f.cache, 168*time.Hour)
	f.svc.now = func() time.Time { return time.Date(2026, 10, 19, 13, 20, 0, 123e6, time.UTC) }
	return f
}

func bothFiles() SubmitRequest {
	return SubmitRequest{
		Hyperparameters: models.Hyperparameters{BaseModel: "gpt2", FineTuningType: "text-generation"},
		Params:          map[string]any{"warmup": "100"},
		TrainingFile:    &File{Filename: "train.jsonl", ContentType: "application/jsonl", Data: []byte(`{"x":1}`)},
		ValidationFile:  &File{Filename: "val.jsonl", ContentType: "application/jsonl", Data: []byte(`{"x":2}`)},
	}
}

func TestSubmit_BothFiles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, bothFiles())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	job, err := f.svc.Details(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "training/"+id.String()+"/train.jsonl", job.TrainingFilePath)
	assert.Equal(t, "validation/"+id.String()+"/val.jsonl", job.ValidationFilePath)
	assert.Equal(t, "scripts/"+id.String()+"/2026-10-19T13-20-00.123Z-script.py", job.ScriptPath)
	assert.NotEmpty(t, job.TrainingFileURL)
	assert.NotEmpty(t, job.ValidationFileURL)
	assert.NotEmpty(t, job.ScriptURL)
	assert.Contains(t, job.ScriptURL, "expires=604800")

	assert.Equal(t, []string{job.TrainingFilePath, job.ValidationFilePath, job.ScriptPath}, f.artifacts.Paths())
	obj, ok := f.artifacts.Get(job.ScriptPath)
	require.True(t, ok)
	assert.Equal(t, ScriptContentType, obj.ContentType)
	assert.Contains(t, string(obj.Data), `from_pretrained("gpt2")`)

	train, ok := f.artifacts.Get(job.TrainingFilePath)
	require.True(t, ok)
	assert.Equal(t, "application/jsonl", train.ContentType)

	msgs := f.queue.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].JobID)
	assert.Equal(t, models.JobStatusPending, msgs[0].Status)
	assert.Equal(t, "gpt2", msgs[0].ModelID)
	assert.Equal(t, "text-generation", msgs[0].FineTuningType)
	assert.Equal(t, "100", msgs[0].Params["warmup"])

	status, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, status)
}

func TestSubmit_NoFiles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, SubmitRequest{})
	require.NoError(t, err)

	job, err := f.svc.Details(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, job.TrainingFilePath)
	assert.Empty(t, job.ValidationFilePath)
	assert.Empty(t, job.TrainingFileURL)
	assert.Empty(t, job.ValidationFileURL)
	assert.True(t, strings.HasPrefix(job.ScriptPath, "scripts/"+id.String()+"/"))

	// Hyperparameters are stored as submitted; defaults only shape the script.
	assert.Empty(t, job.BaseModel)
}

func TestSubmit_MissingBufferAbortsBeforeLinking(t *testing.T) {
	f := newFixture()
	req := bothFiles()
	req.ValidationFile.Data = nil

	_, err := f.svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, artifact.ErrMissingBuffer)

	pending, err := f.svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	job, err := f.store.GetJob(context.Background(), pending[0].ID)
	require.NoError(t, err)
	assert.Empty(t, job.TrainingFilePath)
	assert.Empty(t, job.ScriptPath)
	assert.Empty(t, f.queue.Published())
}

func TestSubmit_UploadFailure(t *testing.T) {
	f := newFixture()
	f.artifacts.FailSave = func(path string) error {
		if strings.HasPrefix(path, "scripts/") {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	_, err := f.svc.Submit(context.Background(), bothFiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Empty(t, f.queue.Published())
}

func TestSubmit_InvalidHyperparameterCreatesNothing(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		Hyperparameters: models.Hyperparameters{BatchSize: "lots"},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	pending, err := f.svc.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmit_PublishFailureKeepsRecord(t *testing.T) {
	f := newFixture()
	f.queue.PublishErr = errors.New("broker down")

	id, err := f.svc.Submit(context.Background(), bothFiles())
	require.Error(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	job, err := f.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ScriptPath)
}

func TestDetails_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Details(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDetails_SigningFailureFailsRead(t *testing.T) {
	f := newFixture()
	id, err := f.svc.Submit(context.Background(), bothFiles())
	require.NoError(t, err)

	f.artifacts.SignErr = errors.New("no credentials")
	_, err = f.svc.Details(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestListPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	assert.NotNil(t, pending)
	assert.Empty(t, pending)

	a, err := f.svc.Submit(ctx, SubmitRequest{Hyperparameters: models.Hyperparameters{FineTuningType: "chat"}})
	require.NoError(t, err)
	b, err := f.svc.Submit(ctx, SubmitRequest{})
	require.NoError(t, err)
	require.NoError(t, f.svc.UpdateStatus(ctx, b, models.JobStatusCompleted))

	pending, err = f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].ID)
	assert.Equal(t, "chat", pending[0].FineTuningType)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, SubmitRequest{})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateStatus(ctx, id, models.JobStatusCompleted))
	// Transitions are not ordered; going back to pending is allowed.
	require.NoError(t, f.svc.UpdateStatus(ctx, id, models.JobStatusPending))

	status, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, status)

	err = f.svc.UpdateStatus(ctx, id, "paused")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = f.svc.UpdateStatus(ctx, uuid.New(), models.JobStatusFailed)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaim_SingleWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, bothFiles())
	require.NoError(t, err)

	const miners = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < miners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Claim(ctx, id, uuid.New(), map[string]any{"gpu": "A100"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, miners-1, conflicts)

	status, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusClaimed, status)
}

func TestClaim_ReturnsDetail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, bothFiles())
	require.NoError(t, err)
	minerID := uuid.New()

	job, err := f.svc.Claim(ctx, id, minerID, map[string]any{"gpu": "A100"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusClaimed, job.Status)
	require.NotNil(t, job.MinerID)
	assert.Equal(t, minerID, *job.MinerID)
	assert.Equal(t, "A100", job.SystemDetails["gpu"])
	assert.NotNil(t, job.ClaimedAt)
	assert.NotEmpty(t, job.ScriptURL)
}

func TestClaim_UnknownJob(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Claim(context.Background(), uuid.New(), uuid.New(), nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_FallsBackToStore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := uuid.New()
	f.store.PutJob(models.Job{ID: id, Status: models.JobStatusInProgress})

	status, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, status)

	cached, found, err := f.cache.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.JobStatusInProgress, cached)
}

func TestStatus_CacheErrorStillServes(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.store.PutJob(models.Job{ID: id, Status: models.JobStatusFailed})
	f.cache.Err = errors.New("redis down")

	status, err := f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, status)
}

func TestUpdateStatus_FailedCacheWriteEvictsStaleStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := uuid.New()
	f.store.PutJob(models.Job{ID: id, Status: models.JobStatusClaimed})
	require.NoError(t, f.cache.SetJobStatus(ctx, id, models.JobStatusClaimed, time.Minute))

	f.cache.SetStatusErr = errors.New("write timeout")
	require.NoError(t, f.svc.UpdateStatus(ctx, id, models.JobStatusCompleted))

	_, found, err := f.cache.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.False(t, found, "stale status must not stay cached")

	status, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status)
}

func TestPaths(t *testing.T) {
	id := uuid.MustParse("7f0c3a52-1d7e-4c1b-9e4f-2a3b4c5d6e7f")
	at := time.Date(2026, 1, 2, 3, 4, 5, 6e6, time.FixedZone("X", 3600))
	assert.Equal(t, "training/7f0c3a52-1d7e-4c1b-9e4f-2a3b4c5d6e7f/a.csv", TrainingFilePath(id, "a.csv"))
	assert.Equal(t, "validation/7f0c3a52-1d7e-4c1b-9e4f-2a3b4c5d6e7f/b.csv", ValidationFilePath(id, "b.csv"))
	assert.Equal(t, "scripts/7f0c3a52-1d7e-4c1b-9e4f-2a3b4c5d6e7f/2026-01-02T02-04-05.006Z-script.py", ScriptPath(id, at))
}
