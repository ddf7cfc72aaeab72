package sentinel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// seq строит таймлайн агента с шагом в секунду.
func seq(agent string, types ...domain.EventType) []domain.Event {
	out := make([]domain.Event, len(types))
	for i, typ := range types {
		out[i] = domain.Event{AgentID: agent, Type: typ, Timestamp: t0.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func repeat(typ domain.EventType, n int) []domain.EventType {
	out := make([]domain.EventType, n)
	for i := range out {
		out[i] = typ
	}
	return out
}

func rules(alerts []Alert) []Rule {
	var out []Rule
	for _, a := range alerts {
		out = append(out, a.Rule)
	}
	return out
}

func TestAudit_RapidFireOnlyForNoisyAgent(t *testing.T) {
	a := NewAuditor(DefaultThresholds())

	events := append(seq("agent-a", repeat(domain.EventAction, 4)...), seq("agent-b", repeat(domain.EventAction, 3)...)...)
	alerts := a.Audit(events)

	require.Len(t, alerts, 1)
	assert.Equal(t, "agent-a", alerts[0].AgentID)
	assert.Equal(t, RuleRapidFire, alerts[0].Rule)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, 4, alerts[0].Count)
}

func TestAudit_ErrorLoop(t *testing.T) {
	a := NewAuditor(DefaultThresholds())
	E, A, G := domain.EventError, domain.EventAction, domain.EventGuardrailBlock

	tests := []struct {
		name   string
		events []domain.EventType
		want   bool
	}{
		{"five consecutive errors", []domain.EventType{E, E, E, E, E}, true},
		{"four errors", []domain.EventType{E, E, E, E}, false},
		{"action resets the streak", []domain.EventType{E, E, A, E, E, E}, false},
		{"guardrail block is neutral", []domain.EventType{E, E, G, E, E, E}, true},
		{"streak after reset", []domain.EventType{E, A, E, E, E, E, E}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := a.Audit(seq("agent", tt.events...))
			if tt.want {
				assert.Contains(t, rules(alerts), RuleErrorLoop)
			} else {
				assert.NotContains(t, rules(alerts), RuleErrorLoop)
			}
		})
	}
}

func TestAudit_ErrorLoopUsesTimestampOrder(t *testing.T) {
	a := NewAuditor(DefaultThresholds())

	// ACTION по времени стоит посреди серии, хотя в батче пришёл последним
	events := seq("agent", repeat(domain.EventError, 5)...)
	events = append(events, domain.Event{AgentID: "agent", Type: domain.EventAction, Timestamp: t0.Add(2500 * time.Millisecond)})

	assert.NotContains(t, rules(a.Audit(events)), RuleErrorLoop)
}

func TestAudit_SecuritySpike(t *testing.T) {
	a := NewAuditor(DefaultThresholds())

	alerts := a.Audit(seq("agent", repeat(domain.EventGuardrailBlock, 4)...))
	require.Len(t, alerts, 1)
	assert.Equal(t, RuleSecuritySpike, alerts[0].Rule)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)

	assert.Empty(t, a.Audit(seq("agent", repeat(domain.EventGuardrailBlock, 3)...)))
}

func TestAudit_OrderAndPurity(t *testing.T) {
	a := NewAuditor(Thresholds{})
	E, A, G := domain.EventError, domain.EventAction, domain.EventGuardrailBlock

	events := append(
		seq("zeta", A, A, A, A),
		seq("alpha", G, G, G, G, A, A, A, A, E, E, E, E, E)...,
	)
	snapshot := append([]domain.Event(nil), events...)

	alerts := a.Audit(events)
	require.Len(t, alerts, 4)
	assert.Equal(t, "alpha", alerts[0].AgentID)
	assert.Equal(t, []Rule{RuleRapidFire, RuleSecuritySpike, RuleErrorLoop, RuleRapidFire}, rules(alerts))
	assert.Equal(t, "zeta", alerts[3].AgentID)

	assert.Equal(t, snapshot, events, "input must not be mutated")
	assert.Equal(t, alerts, a.Audit(events), "same input gives same output")
}

func TestAudit_EmptyInput(t *testing.T) {
	assert.Empty(t, NewAuditor(DefaultThresholds()).Audit(nil))
}

type sliceSource struct {
	events []domain.Event
	since  time.Time
	err    error
}

func (s *sliceSource) ListSince(_ context.Context, since time.Time) ([]domain.Event, error) {
	s.since = since
	return s.events, s.err
}

func TestWatcher_SweepRespondsToCriticalOnly(t *testing.T) {
	E := domain.EventError
	src := &sliceSource{events: append(
		seq("noisy", repeat(domain.EventAction, 5)...),
		seq("flaky", E, E, E, E, E)...,
	)}

	var responded []string
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_alerts_total"}, []string{"rule", "severity"})

	w := NewWatcher(NewAuditor(DefaultThresholds()), src, zap.NewNop(),
		WithWindow(5*time.Minute, time.Second),
		WithAlertCounter(counter),
		WithResponder(ResponderFunc(func(_ context.Context, a Alert) error {
			responded = append(responded, a.AgentID)
			return errors.New("redis down")
		})),
		withClock(func() time.Time { return t0.Add(10 * time.Minute) }),
	)

	alerts, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Equal(t, []string{"noisy"}, responded)
	assert.Equal(t, t0.Add(5*time.Minute), src.since)

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("RAPID_FIRE", "CRITICAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("ERROR_LOOP", "ERROR")))
}

func TestWatcher_SweepPropagatesSourceError(t *testing.T) {
	w := NewWatcher(NewAuditor(DefaultThresholds()), &sliceSource{err: errors.New("db gone")}, zap.NewNop())
	_, err := w.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}

func TestWatcher_UnblockHoldsUntilNewEvents(t *testing.T) {
	src := &sliceSource{events: seq("a", repeat(domain.EventAction, 4)...)}

	blocked := map[string]bool{}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_alerts_total"}, []string{"rule", "severity"})

	w := NewWatcher(NewAuditor(DefaultThresholds()), src, zap.NewNop(),
		WithWindow(time.Minute, time.Second),
		WithAlertCounter(counter),
		WithResponder(ResponderFunc(func(_ context.Context, a Alert) error {
			blocked[a.AgentID] = true
			return nil
		})),
		withClock(func() time.Time { return t0.Add(30 * time.Second) }),
	)
	ctx := context.Background()

	alerts, err := w.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, blocked["a"])

	// оператор снял блокировку, новых событий нет
	blocked["a"] = false
	alerts, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.False(t, blocked["a"])
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("RAPID_FIRE", "CRITICAL")))

	// свежая серия снова даёт алерт
	for i := 0; i < 4; i++ {
		src.events = append(src.events, domain.Event{AgentID: "a", Type: domain.EventAction, Timestamp: t0.Add(time.Duration(10+i) * time.Second)})
	}
	alerts, err = w.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 4, alerts[0].Count)
	assert.True(t, blocked["a"])
}

func TestWatcher_QuietAgentKeepsAccumulating(t *testing.T) {
	src := &sliceSource{events: seq("a", repeat(domain.EventAction, 3)...)}
	w := NewWatcher(NewAuditor(DefaultThresholds()), src, zap.NewNop(),
		withClock(func() time.Time { return t0.Add(30 * time.Second) }),
	)

	alerts, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// без алерта отметки нет: старые события считаются вместе с новым
	src.events = append(src.events, domain.Event{AgentID: "a", Type: domain.EventAction, Timestamp: t0.Add(5 * time.Second)})
	alerts, err = w.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, RuleRapidFire, alerts[0].Rule)
}
