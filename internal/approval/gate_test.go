package approval

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
)

const validUser = "3f1c1a52-5a9b-4e51-9f3e-1d7f2a8e4c10"

type fixture struct {
	gate     *Gate
	store    *MemoryStore
	sent     atomic.Int32
	searches atomic.Int32
	notes    *recordingNotifier
	events   *eventLog
	calls    *prometheus.CounterVec
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Record(e domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	decisions []Decision
}

func (n *recordingNotifier) PublishDecision(_ context.Context, d Decision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decisions = append(n.decisions, d)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryStore(),
		notes:  &recordingNotifier{},
		events: &eventLog{},
		calls:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_tool_calls_total"}, []string{"tool", "status"}),
	}

	reg := tools.NewRegistry(zap.NewNop())
	reg.Register("send_email", tools.HandlerFunc(func(_ context.Context, payload json.RawMessage, _ tools.Call) (string, error) {
		f.sent.Add(1)
		var p struct {
			To string `json:"to"`
		}
		_ = json.Unmarshal(payload, &p)
		return "sent to " + p.To, nil
	}), "Send an email")
	reg.Register("web_search", tools.HandlerFunc(func(context.Context, json.RawMessage, tools.Call) (string, error) {
		f.searches.Add(1)
		return "3 results", nil
	}), "Search the web")
	reg.Register("execute_command", tools.HandlerFunc(func(context.Context, json.RawMessage, tools.Call) (string, error) {
		return "", errors.New("exit status 1")
	}), "Run a shell command")

	f.gate = NewGate(reg, f.store, zap.NewNop(),
		WithNotifier(f.notes),
		WithEventSink(f.events),
		WithToolCounter(f.calls),
	)
	return f
}

func emailCall() tools.Call {
	return tools.Call{AgentID: "agent-1", UserID: validUser, SessionID: "s-1", Reasoning: "user asked to notify ops"}
}

func TestDispatch_NonSensitiveExecutesImmediately(t *testing.T) {
	f := newFixture(t)

	res, req := f.gate.Dispatch(context.Background(), "web_search", json.RawMessage(`{"q":"go"}`), emailCall())
	assert.Nil(t, req)
	assert.True(t, res.IsOk())
	assert.Equal(t, "3 results", res.String())
	assert.EqualValues(t, 1, f.searches.Load())
}

func TestDispatch_SensitiveCreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, req := f.gate.Dispatch(ctx, "send_email", json.RawMessage(`{"to":"ops@example.com"}`), emailCall())
	require.NotNil(t, req)
	assert.Zero(t, f.sent.Load(), "gated tool must not run before approval")

	assert.True(t, strings.HasPrefix(res.String(), "APPROVAL_REQUIRED"))
	assert.Contains(t, res.String(), "Request ID: "+req.ID)

	stored, err := f.gate.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, validUser, stored.UserID)
	assert.Equal(t, "user asked to notify ops", stored.Reasoning)
	assert.Equal(t, `{"to":"ops@example.com"}`, stored.Payload)
}

func TestDispatch_InvalidUserGetsPlaceholder(t *testing.T) {
	f := newFixture(t)
	call := emailCall()
	call.UserID = "guest"

	_, req := f.gate.Dispatch(context.Background(), "send_email", nil, call)
	require.NotNil(t, req)
	assert.Equal(t, domain.PlaceholderUserID, req.UserID)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Create(context.Context, *domain.ApprovalRequest) error {
	return errors.New("connection refused")
}

func TestDispatch_StoreFailureDoesNotExecute(t *testing.T) {
	f := newFixture(t)
	reg := tools.NewRegistry(zap.NewNop())
	reg.Register("send_email", tools.HandlerFunc(func(context.Context, json.RawMessage, tools.Call) (string, error) {
		f.sent.Add(1)
		return "sent", nil
	}), "")
	gate := NewGate(reg, failingStore{NewMemoryStore()}, zap.NewNop())

	res, req := gate.Dispatch(context.Background(), "send_email", nil, emailCall())
	assert.Nil(t, req)
	assert.False(t, res.IsOk())
	assert.ErrorIs(t, res.Err, ErrPersistence)
	assert.Contains(t, res.String(), "could not be persisted")
	assert.Zero(t, f.sent.Load())
}

func TestResolve_ApproveExecutesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, req := f.gate.Dispatch(ctx, "send_email", json.RawMessage(`{"to":"ops@example.com"}`), emailCall())
	require.NotNil(t, req)

	res, err := f.gate.Resolve(ctx, req.ID, true, "reviewer-7")
	require.NoError(t, err)
	require.NotNil(t, res.Result)
	assert.Equal(t, "sent to ops@example.com", res.Result.String())
	assert.Equal(t, domain.StatusApproved, res.Request.Status)
	assert.EqualValues(t, 1, f.sent.Load())

	stored, err := f.gate.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	require.NotNil(t, stored.Result)
	assert.Equal(t, "sent to ops@example.com", *stored.Result)
	require.NotNil(t, stored.ReviewerID)
	assert.Equal(t, "reviewer-7", *stored.ReviewerID)

	// повторное решение: ни выполнения, ни смены статуса
	_, err = f.gate.Resolve(ctx, req.ID, false, "reviewer-8")
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.EqualValues(t, 1, f.sent.Load())

	stored, err = f.gate.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)

	require.Len(t, f.notes.decisions, 1)
	assert.Equal(t, "s-1", f.notes.decisions[0].SessionID)
	assert.Equal(t, "sent to ops@example.com", f.notes.decisions[0].Result)
}

func TestResolve_RejectDoesNotExecute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, req := f.gate.Dispatch(ctx, "send_email", nil, emailCall())
	require.NotNil(t, req)

	res, err := f.gate.Resolve(ctx, req.ID, false, "reviewer-7")
	require.NoError(t, err)
	assert.Nil(t, res.Result)
	assert.Equal(t, domain.StatusRejected, res.Request.Status)
	assert.Zero(t, f.sent.Load())

	_, err = f.gate.Resolve(ctx, req.ID, true, "reviewer-7")
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Zero(t, f.sent.Load())
}

func TestResolve_ConcurrentApprovalsExecuteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, req := f.gate.Dispatch(ctx, "send_email", nil, emailCall())
	require.NotNil(t, req)

	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gate.Resolve(ctx, req.ID, true, "reviewer")
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, domain.ErrAlreadyProcessed):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
	assert.EqualValues(t, 15, rejected.Load())
	assert.EqualValues(t, 1, f.sent.Load())
}

func TestResolve_EmitsEventPerExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, approved := f.gate.Dispatch(ctx, "send_email", json.RawMessage(`{"to":"ops@example.com"}`), emailCall())
	_, rejected := f.gate.Dispatch(ctx, "send_email", nil, emailCall())
	_, failing := f.gate.Dispatch(ctx, "execute_command", json.RawMessage(`{"cmd":"ls"}`), emailCall())
	require.NotNil(t, approved)
	require.NotNil(t, rejected)
	require.NotNil(t, failing)
	// пауза сама по себе событий не создаёт
	assert.Empty(t, f.events.snapshot())

	_, err := f.gate.Resolve(ctx, approved.ID, true, "reviewer-7")
	require.NoError(t, err)
	_, err = f.gate.Resolve(ctx, approved.ID, true, "reviewer-8")
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	_, err = f.gate.Resolve(ctx, rejected.ID, false, "reviewer-7")
	require.NoError(t, err)
	_, err = f.gate.Resolve(ctx, failing.ID, true, "reviewer-7")
	require.NoError(t, err)

	events := f.events.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventAction, events[0].Type)
	assert.Equal(t, "agent-1", events[0].AgentID)
	assert.Equal(t, "send_email", events[0].Details)
	assert.Equal(t, domain.EventError, events[1].Type)
	assert.Contains(t, events[1].Details, "exit status 1")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.calls.WithLabelValues("send_email", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.calls.WithLabelValues("execute_command", "error")))
}

func TestResolve_UnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Resolve(context.Background(), "nope", true, "r")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBypassIsNotReachableFromCallers(t *testing.T) {
	f := newFixture(t)
	// чужой ключ с тем же значением не должен сработать как флаг
	ctx := context.WithValue(context.Background(), struct{}{}, true)

	_, req := f.gate.Dispatch(ctx, "send_email", nil, emailCall())
	assert.NotNil(t, req)
	assert.Zero(t, f.sent.Load())
}

func TestList_FiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	f.gate.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	_, first := f.gate.Dispatch(ctx, "send_email", nil, emailCall())
	_, second := f.gate.Dispatch(ctx, "write_file", nil, emailCall())
	require.NotNil(t, first)
	require.NotNil(t, second)
	_, err := f.gate.Resolve(ctx, first.ID, false, "r")
	require.NoError(t, err)

	pending, err := f.gate.List(ctx, domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	all, err := f.gate.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision(`{"request_id":"r1","agent_id":"a","tool_name":"send_email","status":"approved","reviewer_id":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, d.Status)

	_, err = ParseDecision("not json")
	require.Error(t, err)
}
