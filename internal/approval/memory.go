package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

// MemoryStore: Store в памяти. Условное обновление атомарно под мьютексом.
type MemoryStore struct {
	mu   sync.Mutex
	reqs map[string]domain.ApprovalRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]domain.ApprovalRequest)}
}

func (s *MemoryStore) Create(_ context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = *req
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &req, nil
}

func (s *MemoryStore) List(_ context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.ApprovalRequest, 0, len(s.reqs))
	for _, r := range s.reqs {
		if status != "" && r.Status != status {
			continue
		}
		r := r
		out = append(out, &r)
	}
	// как в Postgres: новые сверху
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateStatusIfPending(_ context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.reqs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := req.CanTransitionTo(status); err != nil {
		return nil, err
	}

	req.Status = status
	req.ReviewerID = &reviewerID
	req.ResolvedAt = &at
	s.reqs[id] = req
	return &req, nil
}

func (s *MemoryStore) SaveResult(_ context.Context, id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	req.Result = &result
	s.reqs[id] = req
	return nil
}
