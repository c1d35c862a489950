// Package mock provides an in-memory cache.Cache for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/cache"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// Cache satisfies cache.Cache in memory. Expiry is ignored. Set Err to fail
// every call, or SetStatusErr to fail only SetJobStatus.
type Cache struct {
	mu        sync.Mutex
	statuses  map[uuid.UUID]models.JobStatus
	listening map[uuid.UUID]bool
	counters  map[string]int64

	Err          error
	SetStatusErr error
}

func NewCache() *Cache {
	return &Cache{
		statuses:  map[uuid.UUID]models.JobStatus{},
		listening: map[uuid.UUID]bool{},
		counters:  map[string]int64{},
	}
}

func (c *Cache) Ping(context.Context) error { return c.Err }

func (c *Cache) SetJobStatus(_ context.Context, jobID uuid.UUID, status models.JobStatus, _ time.Duration) error {
	if c.Err != nil {
		return c.Err
	}
	if c.SetStatusErr != nil {
		return c.SetStatusErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *Cache) GetJobStatus(_ context.Context, jobID uuid.UUID) (models.JobStatus, bool, error) {
	if c.Err != nil {
		return "", false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *Cache) DeleteJobStatus(_ context.Context, jobID uuid.UUID) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, jobID)
	return nil
}

func (c *Cache) MarkMinerListening(_ context.Context, minerID uuid.UUID, _ time.Duration) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening[minerID] = true
	return nil
}

func (c *Cache) IsMinerListening(_ context.Context, minerID uuid.UUID) (bool, error) {
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening[minerID], nil
}

func (c *Cache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

// Compile-time check that Cache implements cache.Cache.
var _ cache.Cache = (*Cache)(nil)
