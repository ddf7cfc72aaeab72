// Package approval перехватывает вызовы чувствительных инструментов и держит их
// до решения оператора (Human-in-the-loop).
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
	"go.uber.org/zap"
)

// ControlPrefix открывает ответ, которым вызов ставится на паузу.
const ControlPrefix = "APPROVAL_REQUIRED"

var ErrPersistence = errors.New("approval request could not be persisted")

// sensitiveTools: фиксированный список, членство по точному имени.
var sensitiveTools = map[string]struct{}{
	"send_email":          {},
	"send_message":        {},
	"create_payment_link": {},
	"execute_command":     {},
	"write_file":          {},
}

func IsSensitive(name string) bool {
	_, ok := sensitiveTools[name]
	return ok
}

// Executor: то, что реально запускает инструмент (tools.Registry).
type Executor interface {
	Execute(ctx context.Context, name string, payload json.RawMessage, call tools.Call) tools.Result
}

// Store: долговременное хранилище заявок.
type Store interface {
	Create(ctx context.Context, req *domain.ApprovalRequest) error
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	// UpdateStatusIfPending атомарно переводит pending-заявку в status.
	// Уже решённая заявка → domain.ErrAlreadyProcessed, несуществующая → domain.ErrNotFound.
	UpdateStatusIfPending(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error)
	SaveResult(ctx context.Context, id, result string) error
}

// Notifier рассылает решения (Redis pub/sub в проде).
type Notifier interface {
	PublishDecision(ctx context.Context, d Decision) error
}

// EventSink принимает телеметрию исполнений после одобрения (audit.Recorder).
type EventSink interface {
	Record(e domain.Event)
}

// Decision: то, что уходит в канал решений.
type Decision struct {
	RequestID  string                `json:"request_id"`
	AgentID    string                `json:"agent_id"`
	SessionID  string                `json:"session_id,omitempty"`
	ToolName   string                `json:"tool_name"`
	Status     domain.ApprovalStatus `json:"status"`
	ReviewerID string                `json:"reviewer_id"`
	Result     string                `json:"result,omitempty"`
}

type Resolution struct {
	Request *domain.ApprovalRequest
	// Result: nil для отклонённых заявок.
	Result *tools.Result
}

type Gate struct {
	exec     Executor
	store    Store
	notifier Notifier
	events   EventSink
	calls    *prometheus.CounterVec
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Gate)

func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

func WithEventSink(sink EventSink) Option {
	return func(g *Gate) { g.events = sink }
}

// WithToolCounter: счётчик с лейблами tool и status, общий с оркестратором.
func WithToolCounter(c *prometheus.CounterVec) Option {
	return func(g *Gate) { g.calls = c }
}

func NewGate(exec Executor, store Store, logger *zap.Logger, opts ...Option) *Gate {
	g := &Gate{
		exec:   exec,
		store:  store,
		now:    time.Now,
		logger: logger.With(zap.String("mod", "approval")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type bypassKey struct{}

// withBypass ставит флаг предодобрения. Выставляется только из Resolve,
// агент до него дотянуться не может.
func withBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// Dispatch выполняет инструмент или, если он чувствительный, создаёт pending-заявку
// и возвращает управляющее сообщение. Второе значение не nil только при паузе.
func (g *Gate) Dispatch(ctx context.Context, name string, payload json.RawMessage, call tools.Call) (tools.Result, *domain.ApprovalRequest) {
	if !IsSensitive(name) || bypassed(ctx) {
		return g.exec.Execute(ctx, name, payload, call), nil
	}

	userID := call.UserID
	if _, err := uuid.Parse(userID); err != nil {
		userID = domain.PlaceholderUserID
	}

	req := &domain.ApprovalRequest{
		ID:        uuid.NewString(),
		AgentID:   call.AgentID,
		SessionID: call.SessionID,
		ToolName:  name,
		Payload:   string(payload),
		Status:    domain.StatusPending,
		UserID:    userID,
		Reasoning: call.Reasoning,
		CreatedAt: g.now().UTC(),
	}

	if err := g.store.Create(ctx, req); err != nil {
		// без записи в хранилище вызов не выполняется ни при каких условиях
		g.logger.Error("failed to persist approval request",
			zap.String("agent_id", call.AgentID), zap.String("tool", name), zap.Error(err))
		return tools.Fail(name, fmt.Errorf("%w: %v", ErrPersistence, err)), nil
	}

	g.logger.Info("sensitive call paused for approval",
		zap.String("approval_id", req.ID),
		zap.String("agent_id", req.AgentID),
		zap.String("tool", name),
	)

	msg := fmt.Sprintf("%s: Tool '%s' requires human approval before execution. Request ID: %s",
		ControlPrefix, name, req.ID)
	return tools.Ok(name, msg), req
}

// Resolve: единственный путь смены статуса. Сначала атомарный захват заявки
// (pending → approved|rejected), затем выполнение: инструмент запускает только
// победитель гонки, повторное решение получает domain.ErrAlreadyProcessed.
func (g *Gate) Resolve(ctx context.Context, id string, approved bool, reviewerID string) (*Resolution, error) {
	status := domain.StatusRejected
	if approved {
		status = domain.StatusApproved
	}

	req, err := g.store.UpdateStatusIfPending(ctx, id, status, reviewerID, g.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			g.logger.Warn("duplicate decision ignored", zap.String("approval_id", id))
		}
		return nil, err
	}

	res := &Resolution{Request: req}
	decision := Decision{
		RequestID:  req.ID,
		AgentID:    req.AgentID,
		SessionID:  req.SessionID,
		ToolName:   req.ToolName,
		Status:     req.Status,
		ReviewerID: reviewerID,
	}

	if approved {
		call := tools.Call{
			AgentID:   req.AgentID,
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Reasoning: req.Reasoning,
		}
		result, _ := g.Dispatch(withBypass(ctx), req.ToolName, json.RawMessage(req.Payload), call)
		res.Result = &result
		g.observe(req, result)

		out := result.String()
		req.Result = &out
		decision.Result = out
		if err := g.store.SaveResult(ctx, req.ID, out); err != nil {
			g.logger.Error("failed to save approval result", zap.String("approval_id", req.ID), zap.Error(err))
		}
	}

	g.logger.Info("approval resolved",
		zap.String("approval_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.String("reviewer_id", reviewerID),
	)

	if g.notifier != nil {
		if err := g.notifier.PublishDecision(ctx, decision); err != nil {
			g.logger.Error("failed to publish decision", zap.String("approval_id", req.ID), zap.Error(err))
		}
	}
	return res, nil
}

// observe отражает реальный исход одобренного вызова в событиях и метриках,
// иначе sentinel не видит чувствительные инструменты.
func (g *Gate) observe(req *domain.ApprovalRequest, result tools.Result) {
	typ, status, details := domain.EventAction, "ok", req.ToolName
	if !result.IsOk() {
		typ, status, details = domain.EventError, "error", fmt.Sprintf("%s: %v", req.ToolName, result.Err)
	}
	if g.calls != nil {
		g.calls.WithLabelValues(req.ToolName, status).Inc()
	}
	if g.events != nil {
		g.events.Record(domain.Event{
			AgentID:   req.AgentID,
			Type:      typ,
			Timestamp: g.now().UTC(),
			Details:   details,
		})
	}
}

func (g *Gate) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return g.store.Get(ctx, id)
}

// List с пустым статусом возвращает все заявки.
func (g *Gate) List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	return g.store.List(ctx, status)
}
