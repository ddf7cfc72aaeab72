package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"github.com/xela07ax/spaceai-orchestrator/internal/guardrail"
	"github.com/xela07ax/spaceai-orchestrator/internal/llm"
	"github.com/xela07ax/spaceai-orchestrator/internal/ratelimit"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
	"github.com/xela07ax/spaceai-orchestrator/internal/workflow"
	"go.uber.org/zap"
)

// Фиксированные ответы для отказов. Детали отказа уходят в лог и события, не пользователю.
const (
	SecurityAlertReply   = "Security alert: your message was blocked by the safety policy and was not processed."
	RateLimitedReply     = "You're sending messages too quickly. Please wait a moment and try again."
	AgentBlockedReply    = "This agent has been suspended by an operator."
	InferenceFailedReply = "The assistant is temporarily unavailable. Please try again."
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type HistoryEntry struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Thought string    `json:"thought,omitempty"`
	At      time.Time `json:"at"`
}

type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeInputRejected  Outcome = "input_rejected"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeBlocked        Outcome = "blocked"
	OutcomeInferenceError Outcome = "inference_error"
)

type Reply struct {
	Message string  `json:"message"`
	Outcome Outcome `json:"outcome"`
	Thought string  `json:"thought,omitempty"`

	Tool       string `json:"tool,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// Dispatcher: перехват чувствительных вызовов (approval.Gate).
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload json.RawMessage, call tools.Call) (tools.Result, *domain.ApprovalRequest)
}

// ToolCatalog: описание инструментов для модели (tools.Registry).
type ToolCatalog interface {
	Describe() []tools.Info
}

// EventSink принимает телеметрию для аудитора (audit.Recorder).
type EventSink interface {
	Record(e domain.Event)
}

type BlockChecker interface {
	IsBlocked(agentID string) bool
}

type Session struct {
	ID      string
	AgentID string
	UserID  string
}

// Deps: всё, что оркестратор получает снаружи. Events, KillSwitch, Metrics, Workflow опциональны.
type Deps struct {
	Model      llm.Model
	Tools      ToolCatalog
	Dispatcher Dispatcher
	Input      *guardrail.InputGuard
	Output     *guardrail.OutputGuard
	Bucket     *ratelimit.Bucket
	Events     EventSink
	KillSwitch BlockChecker
	Metrics    *Metrics
	Workflow   *workflow.Machine
	Logger     *zap.Logger
}

// Orchestrator: один на сессию. Ходы внутри сессии сериализует вызывающий
// (SessionManager); история защищена отдельно, чтобы читать её во время хода.
type Orchestrator struct {
	session Session
	deps    Deps
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.RWMutex
	history []HistoryEntry
}

func NewOrchestrator(s Session, deps Deps) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Workflow == nil {
		deps.Workflow = workflow.NewMachine()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		session: s,
		deps:    deps,
		now:     time.Now,
		logger: logger.With(
			zap.String("mod", "orchestrator"),
			zap.String("session_id", s.ID),
			zap.String("agent_id", s.AgentID),
		),
	}
}

func (o *Orchestrator) Session() Session { return o.session }

func (o *Orchestrator) Workflow() *workflow.Machine { return o.deps.Workflow }

// Turn: kill-switch → входной гардрейл → лимит → инференс → выходной гардрейл →
// история → (действие: перехват/исполнение → системная запись).
// Отказ до инференса записывает в историю только сам отказ.
// Ошибка возвращается лишь при сбое инференса; история при этом не меняется.
func (o *Orchestrator) Turn(ctx context.Context, input string) (reply Reply, err error) {
	start := o.now()
	defer func() {
		o.deps.Metrics.Turns.WithLabelValues(string(reply.Outcome)).Inc()
		o.deps.Metrics.TurnDuration.WithLabelValues(string(reply.Outcome)).Observe(o.now().Sub(start).Seconds())
	}()

	if ks := o.deps.KillSwitch; ks != nil && ks.IsBlocked(o.session.AgentID) {
		o.logger.Warn("turn refused: agent is blocked")
		return o.reject(OutcomeBlocked, AgentBlockedReply), nil
	}

	verdict := o.deps.Input.Validate(input)
	if !verdict.IsValid {
		o.logger.Warn("input rejected by guardrail", zap.String("reason", verdict.Reason))
		o.emit(domain.EventGuardrailBlock, verdict.Reason)
		return o.reject(OutcomeInputRejected, SecurityAlertReply), nil
	}

	if !o.deps.Bucket.Take(1) {
		o.logger.Info("turn throttled")
		return o.reject(OutcomeRateLimited, RateLimitedReply), nil
	}

	completion, err := o.deps.Model.Generate(ctx, o.buildRequest(verdict.Sanitized))
	if err != nil {
		o.logger.Error("inference failed", zap.Error(err))
		return Reply{Message: InferenceFailedReply, Outcome: OutcomeInferenceError}, fmt.Errorf("inference: %w", err)
	}

	message := o.deps.Output.Sanitize(completion.Message)
	thought := o.deps.Output.Sanitize(completion.ThoughtProcess)

	o.append(
		HistoryEntry{Role: RoleUser, Content: verdict.Sanitized},
		HistoryEntry{Role: RoleAssistant, Content: message, Thought: thought},
	)
	reply = Reply{Message: message, Outcome: OutcomeOK, Thought: thought}

	if completion.Action == nil || completion.Action.Name == "" {
		return reply, nil
	}

	action := completion.Action
	call := tools.Call{
		AgentID:   o.session.AgentID,
		UserID:    o.session.UserID,
		SessionID: o.session.ID,
		Reasoning: thought,
	}
	result, pending := o.deps.Dispatcher.Dispatch(ctx, action.Name, action.Payload, call)

	// результат инструмента тоже попадает в историю, поэтому проходит тот же фильтр
	out := o.deps.Output.Sanitize(result.String())
	o.append(HistoryEntry{Role: RoleSystem, Content: out})

	reply.Tool = action.Name
	reply.ToolResult = out

	switch {
	case pending != nil:
		reply.ApprovalID = pending.ID
		o.deps.Metrics.ToolCalls.WithLabelValues(action.Name, "approval_required").Inc()
	case result.IsOk():
		o.emit(domain.EventAction, action.Name)
		o.deps.Metrics.ToolCalls.WithLabelValues(action.Name, "ok").Inc()
	default:
		o.emit(domain.EventError, fmt.Sprintf("%s: %v", action.Name, result.Err))
		o.deps.Metrics.ToolCalls.WithLabelValues(action.Name, "error").Inc()
	}
	return reply, nil
}

// History: копия; снаружи журнал не изменить.
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.history)
}

// AppendSystem: запись вне хода (например, исход решения оператора).
func (o *Orchestrator) AppendSystem(content string) {
	o.append(HistoryEntry{Role: RoleSystem, Content: o.deps.Output.Sanitize(content)})
}

func (o *Orchestrator) reject(outcome Outcome, msg string) Reply {
	o.append(HistoryEntry{Role: RoleAssistant, Content: msg})
	return Reply{Message: msg, Outcome: outcome}
}

func (o *Orchestrator) append(entries ...HistoryEntry) {
	at := o.now().UTC()
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range entries {
		e.At = at
		o.history = append(o.history, e)
	}
}

func (o *Orchestrator) emit(t domain.EventType, details string) {
	if o.deps.Events == nil {
		return
	}
	o.deps.Events.Record(domain.Event{
		AgentID:   o.session.AgentID,
		Type:      t,
		Timestamp: o.now().UTC(),
		Details:   details,
	})
}

func (o *Orchestrator) buildRequest(input string) llm.Request {
	o.mu.RLock()
	msgs := make([]llm.Message, 0, len(o.history))
	for _, h := range o.history {
		msgs = append(msgs, llm.Message{Role: string(h.Role), Content: h.Content})
	}
	o.mu.RUnlock()

	req := llm.Request{
		SessionID: o.session.ID,
		AgentID:   o.session.AgentID,
		Input:     input,
		History:   msgs,
	}
	if o.deps.Tools != nil {
		req.Tools = o.deps.Tools.Describe()
	}
	if s := o.deps.Workflow.State(); s != nil {
		req.Step = &llm.Step{Workflow: s.Definition.Name, Role: s.CurrentStep.Role, Label: s.CurrentStep.Label, Progress: s.Progress}
	}
	return req
}
