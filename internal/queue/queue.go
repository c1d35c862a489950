// Package queue moves job messages from the submission path to listening miners.
//
// Both backends acknowledge a message only after its handler returns nil.
// A failed handler leaves the message to be delivered again.
//
// The Redis backend parks a message in a per-consumer processing list while
// it is handled. A consumer that stops returns that list to the queue. If the
// process dies instead, the messages stay parked until a consumer with the
// same ID starts again; nothing reclaims them for other consumers. SQS has no
// such gap since unacknowledged messages reappear after the visibility timeout.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/finetunehub/internal/config"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// Handler processes one delivered message.
type Handler func(ctx context.Context, msg models.JobMessage) error

// Queue is a durable job queue.
type Queue interface {
	Publish(ctx context.Context, msg models.JobMessage) error
	// Consume blocks, delivering messages to handler until ctx is cancelled.
	// consumerID distinguishes concurrent consumers of the same queue.
	Consume(ctx context.Context, consumerID string, handler Handler) error
	Close() error
}

// New constructs the backend selected by cfg.Queue.Backend.
// Called once at server startup.
func New(ctx context.Context, cfg *config.Config) (Queue, error) {
	switch cfg.Queue.Backend {
	case "redis":
		return NewRedisQueue(cfg.Redis.URL, cfg.Queue.Name)
	case "sqs":
		return NewSQSQueue(ctx, cfg.Queue)
	default:
		return nil, fmt.Errorf("unknown queue backend %q: must be one of redis, sqs", cfg.Queue.Backend)
	}
}

func encode(msg models.JobMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode job message: %w", err)
	}
	return body, nil
}

func decode(body []byte) (models.JobMessage, error) {
	var msg models.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return models.JobMessage{}, fmt.Errorf("decode job message: %w", err)
	}
	return msg, nil
}
