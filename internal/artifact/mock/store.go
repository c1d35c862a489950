// Package mock provides an in-memory artifact.Store for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/finetunehub/internal/artifact"
)

// Object is a blob held by Store.
type Object struct {
	Data        []byte
	ContentType string
}

// Store satisfies artifact.Store in memory. FailSave, when set, is consulted
// before every upload; SignErr, when set, fails every signing call.
type Store struct {
	mu      sync.Mutex
	objects map[string]Object
	order   []string

	FailSave func(path string) error
	SignErr  error
}

func NewStore() *Store {
	return &Store{objects: map[string]Object{}}
}

func (s *Store) Save(_ context.Context, path string, data []byte, contentType string) error {
	if data == nil {
		return fmt.Errorf("upload %s: %w", path, artifact.ErrMissingBuffer)
	}
	if s.FailSave != nil {
		if err := s.FailSave(path); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	s.order = append(s.order, path)
	return nil
}

func (s *Store) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	if s.SignErr != nil {
		return "", s.SignErr
	}
	return fmt.Sprintf("https://artifacts.test/%s?expires=%d", path, int64(ttl.Seconds())), nil
}

// Get returns the object stored under path.
func (s *Store) Get(path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[path]
	return o, ok
}

// Paths returns every saved path in upload order.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Compile-time check that Store implements artifact.Store.
var _ artifact.Store = (*Store)(nil)
