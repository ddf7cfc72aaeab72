package workflow

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

// MemoryStore: Store для тестов и запуска без Postgres.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]domain.WorkflowDefinition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]domain.WorkflowDefinition)}
}

func (s *MemoryStore) Create(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = clone(*def)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := clone(def)
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WorkflowDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.defs[def.ID]
	if !ok {
		return domain.ErrNotFound
	}
	next := clone(*def)
	next.Version = prev.Version
	next.CreatedAt = prev.CreatedAt
	s.defs[def.ID] = next
	return nil
}

func (s *MemoryStore) Publish(_ context.Context, id string, at time.Time) (*domain.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if def.Status == domain.DeploymentPublished {
		return nil, domain.ErrWorkflowPublished
	}
	def.Status = domain.DeploymentPublished
	def.Version++
	def.UpdatedAt = at
	s.defs[id] = def

	out := clone(def)
	return &out, nil
}

func clone(d domain.WorkflowDefinition) domain.WorkflowDefinition {
	d.Steps = slices.Clone(d.Steps)
	return d
}
