package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/finetunehub/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultBlockTimeout = 5 * time.Second
	releaseTimeout      = 5 * time.Second
)

// RedisQueue is a list-backed queue. Producers push on the left, consumers
// atomically move from the right into a per-consumer processing list and
// remove the entry once it has been handled.
type RedisQueue struct {
	client       *redis.Client
	name         string
	blockTimeout time.Duration
}

// NewRedisQueue connects to redisURL and uses the list called name.
func NewRedisQueue(redisURL, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{
		client:       redis.NewClient(opts),
		name:         name,
		blockTimeout: defaultBlockTimeout,
	}, nil
}

func (q *RedisQueue) processingKey(consumerID string) string {
	return fmt.Sprintf("%s:processing:%s", q.name, consumerID)
}

func (q *RedisQueue) Publish(ctx context.Context, msg models.JobMessage) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.name, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", q.name, err)
	}
	return nil
}

// Len reports how many messages are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func (q *RedisQueue) Consume(ctx context.Context, consumerID string, handler Handler) error {
	processing := q.processingKey(consumerID)

	if err := q.requeueInFlight(ctx, processing); err != nil {
		return err
	}
	defer q.releaseInFlight(ctx, consumerID, processing)

	for {
		raw, err := q.client.BLMove(ctx, q.name, processing, "RIGHT", "LEFT", q.blockTimeout).Result()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("receive from %s: %w", q.name, err)
		}

		msg, err := decode([]byte(raw))
		if err != nil {
			// A malformed payload can never succeed; drop it.
			slog.Error("dropping malformed job message", "queue", q.name, "error", err)
			q.client.LRem(ctx, processing, 1, raw)
			continue
		}

		if err := handler(ctx, msg); err != nil {
			slog.Warn("job message handler failed, requeueing",
				"queue", q.name, "consumer", consumerID, "job_id", msg.JobID, "error", err)
			pipe := q.client.TxPipeline()
			pipe.LRem(ctx, processing, 1, raw)
			pipe.LPush(ctx, q.name, raw)
			if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("requeue job message: %w", err)
			}
			continue
		}

		if err := q.client.LRem(ctx, processing, 1, raw).Err(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ack job message: %w", err)
		}
	}
}

// requeueInFlight returns messages a previous run of this consumer took but
// never acknowledged to the consuming end of the queue.
func (q *RedisQueue) requeueInFlight(ctx context.Context, processing string) error {
	for {
		_, err := q.client.LMove(ctx, processing, q.name, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("requeue in-flight messages: %w", err)
		}
	}
}

// releaseInFlight hands back whatever this consumer still holds when it
// stops. The caller's context is usually cancelled by then.
func (q *RedisQueue) releaseInFlight(ctx context.Context, consumerID, processing string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := q.requeueInFlight(ctx, processing); err != nil {
		slog.Warn("could not release in-flight job messages",
			"queue", q.name, "consumer", consumerID, "error", err)
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Compile-time check that RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)
