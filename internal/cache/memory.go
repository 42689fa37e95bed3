package cache

import (
	"context"
	"sync"

	"feedsync/internal/models"
)

// MemoryStore is an in-process Store. It backs tests and the offline fallback
// path; contents do not survive a restart.
type MemoryStore struct {
	collections map[string][]models.Post
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]models.Post),
	}
}

func (s *MemoryStore) Get(_ context.Context, name string) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	return models.ClonePosts(posts), nil
}

func (s *MemoryStore) Set(_ context.Context, name string, posts []models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = models.ClonePosts(posts)
	return nil
}
