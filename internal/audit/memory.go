package audit

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

// MemoryStorage хранит события в кольцевом окне; годится и как источник для sentinel.Watcher.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []domain.Event
	limit  int
}

func NewMemoryStorage(limit int) *MemoryStorage {
	if limit <= 0 {
		limit = 10000
	}
	return &MemoryStorage{limit: limit}
}

func (s *MemoryStorage) WriteBatch(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	if over := len(s.events) - s.limit; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
	return nil
}

func (s *MemoryStorage) ListSince(_ context.Context, since time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0)
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
