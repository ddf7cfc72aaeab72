package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-orchestrator/internal/approval"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionAgent    = errors.New("session belongs to another agent")
)

// Factory собирает оркестратор новой сессии (свой бакет, своя история).
type Factory func(s Session) *Orchestrator

type sessionSlot struct {
	turn sync.Mutex // не больше одного хода в сессии одновременно
	orch *Orchestrator
}

// SessionManager держит по оркестратору на сессию и сериализует ходы внутри неё.
// Разные сессии ничего не делят и идут параллельно.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessionSlot
	factory  Factory
	logger   *zap.Logger
}

func NewSessionManager(factory Factory, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*sessionSlot),
		factory:  factory,
		logger:   logger.With(zap.String("mod", "sessions")),
	}
}

func (m *SessionManager) Turn(ctx context.Context, s Session, input string) (Reply, error) {
	slot, err := m.slot(s)
	if err != nil {
		return Reply{}, err
	}

	slot.turn.Lock()
	defer slot.turn.Unlock()
	return slot.orch.Turn(ctx, input)
}

func (m *SessionManager) Get(sessionID string) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return slot.orch, nil
}

// Open возвращает оркестратор сессии, создавая его при первом обращении.
func (m *SessionManager) Open(s Session) (*Orchestrator, error) {
	slot, err := m.slot(s)
	if err != nil {
		return nil, err
	}
	return slot.orch, nil
}

func (m *SessionManager) History(sessionID string) ([]HistoryEntry, error) {
	o, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return o.History(), nil
}

func (m *SessionManager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *SessionManager) slot(s Session) (*sessionSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, ok := m.sessions[s.ID]; ok {
		if slot.orch.Session().AgentID != s.AgentID {
			return nil, fmt.Errorf("%w: %s", ErrSessionAgent, s.ID)
		}
		return slot, nil
	}

	slot := &sessionSlot{orch: m.factory(s)}
	m.sessions[s.ID] = slot
	m.logger.Info("session opened", zap.String("session_id", s.ID), zap.String("agent_id", s.AgentID))
	return slot, nil
}

// PublishDecision реализует approval.Notifier для запуска в одном процессе:
// исход решения сразу попадает в историю исходной сессии.
func (m *SessionManager) PublishDecision(_ context.Context, d approval.Decision) error {
	m.applyDecision(d)
	return nil
}

// ListenDecisions: то же самое через Redis, когда решения принимает другой инстанс.
func (m *SessionManager) ListenDecisions(ctx context.Context, rdb *redis.Client, channel string) {
	ListenResilient(ctx, rdb, m.logger, channel, nil, func(payload string) {
		d, err := approval.ParseDecision(payload)
		if err != nil {
			m.logger.Error("invalid decision message", zap.Error(err))
			return
		}
		m.applyDecision(d)
	})
}

func (m *SessionManager) applyDecision(d approval.Decision) {
	if d.SessionID == "" {
		return
	}
	o, err := m.Get(d.SessionID)
	if err != nil {
		// сессия живёт на другом инстансе или уже закрыта
		m.logger.Debug("decision for unknown session", zap.String("session_id", d.SessionID))
		return
	}

	var msg string
	switch d.Status {
	case domain.StatusApproved:
		msg = fmt.Sprintf("Request %s for tool '%s' was approved. Result: %s", d.RequestID, d.ToolName, d.Result)
	case domain.StatusRejected:
		msg = fmt.Sprintf("Request %s for tool '%s' was rejected by an operator.", d.RequestID, d.ToolName)
	default:
		return
	}
	o.AppendSystem(msg)
}
