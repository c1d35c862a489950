// Package listener runs one queue consumer per miner that asked to listen
// for jobs.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/queue"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// PresenceTTL is how long a miner counts as listening after it last
// announced itself.
const PresenceTTL = 10 * time.Minute

// Presence records that a miner is listening.
type Presence interface {
	MarkMinerListening(ctx context.Context, minerID uuid.UUID, ttl time.Duration) error
}

// Manager owns the consumer goroutines. The zero value is not usable; call NewManager.
type Manager struct {
	queue    queue.Queue
	presence Presence
	handler  queue.Handler

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running map[uuid.UUID]struct{}
	wg      sync.WaitGroup
}

// NewManager creates a Manager whose consumers stop when parent is cancelled
// or Stop is called. A nil handler logs each received job.
func NewManager(parent context.Context, q queue.Queue, presence Presence, handler queue.Handler) *Manager {
	ctx, cancel := context.WithCancel(parent)
	if handler == nil {
		handler = LogJob
	}
	return &Manager{
		queue:    q,
		presence: presence,
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
		running:  make(map[uuid.UUID]struct{}),
	}
}

// Start begins consuming on behalf of minerID. It reports false when the
// miner already has a consumer, or the manager is stopped.
func (m *Manager) Start(ctx context.Context, minerID uuid.UUID) bool {
	if err := m.presence.MarkMinerListening(ctx, minerID, PresenceTTL); err != nil {
		slog.Warn("failed to record miner presence", "miner_id", minerID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return false
	}
	if _, ok := m.running[minerID]; ok {
		return false
	}
	m.running[minerID] = struct{}{}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, minerID)
			m.mu.Unlock()
		}()

		slog.Info("miner listening for jobs", "miner_id", minerID)
		if err := m.queue.Consume(m.ctx, minerID.String(), m.handler); err != nil {
			slog.Error("job consumer stopped", "miner_id", minerID, "error", err)
			return
		}
		slog.Info("miner stopped listening", "miner_id", minerID)
	}()
	return true
}

// Listening reports whether minerID currently has a consumer.
func (m *Manager) Listening(minerID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[minerID]
	return ok
}

// Stop cancels every consumer and waits for them to return.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// LogJob is the default handler: it records the job and acknowledges it.
func LogJob(_ context.Context, msg models.JobMessage) error {
	slog.Info("received job",
		"job_id", msg.JobID,
		"fine_tuning_type", msg.FineTuningType,
		"model_id", msg.ModelID,
		"status", msg.Status,
	)
	return nil
}
