// Package mock provides an in-memory queue.Queue for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/finetunehub/internal/queue"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// Queue satisfies queue.Queue with a buffered channel. A message whose
// handler fails is put back. PublishErr, when set, fails every Publish.
type Queue struct {
	mu        sync.Mutex
	published []models.JobMessage
	ch        chan models.JobMessage

	PublishErr error
}

func NewQueue() *Queue {
	return &Queue{ch: make(chan models.JobMessage, 64)}
}

func (q *Queue) Publish(_ context.Context, msg models.JobMessage) error {
	if q.PublishErr != nil {
		return q.PublishErr
	}
	q.mu.Lock()
	q.published = append(q.published, msg)
	q.mu.Unlock()
	q.ch <- msg
	return nil
}

func (q *Queue) Consume(ctx context.Context, _ string, handler queue.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-q.ch:
			if err := handler(ctx, msg); err != nil {
				q.ch <- msg
			}
		}
	}
}

func (q *Queue) Close() error { return nil }

// Published returns every message passed to Publish.
func (q *Queue) Published() []models.JobMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.JobMessage(nil), q.published...)
}

// Compile-time check that Queue implements queue.Queue.
var _ queue.Queue = (*Queue)(nil)
