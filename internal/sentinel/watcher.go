package sentinel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// EventSource отдаёт события, записанные не раньше since.
type EventSource interface {
	ListSince(ctx context.Context, since time.Time) ([]domain.Event, error)
}

// Responder реагирует на CRITICAL-алерт (в проде: kill-switch агента).
type Responder interface {
	Respond(ctx context.Context, alert Alert) error
}

type ResponderFunc func(ctx context.Context, alert Alert) error

func (f ResponderFunc) Respond(ctx context.Context, alert Alert) error { return f(ctx, alert) }

type Watcher struct {
	auditor   *Auditor
	source    EventSource
	responder Responder
	alerts    *prometheus.CounterVec
	window    time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu sync.Mutex
	// seen: отметка последнего события агента, уже давшего алерт.
	// События не позже отметки в следующие проходы не попадают.
	seen map[string]time.Time
}

type WatcherOption func(*Watcher)

func WithResponder(r Responder) WatcherOption {
	return func(w *Watcher) { w.responder = r }
}

// WithAlertCounter: счётчик с лейблами rule и severity.
func WithAlertCounter(c *prometheus.CounterVec) WatcherOption {
	return func(w *Watcher) { w.alerts = c }
}

func WithWindow(window, interval time.Duration) WatcherOption {
	return func(w *Watcher) {
		if window > 0 {
			w.window = window
		}
		if interval > 0 {
			w.interval = interval
		}
	}
}

func withClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) { w.now = now }
}

func NewWatcher(auditor *Auditor, source EventSource, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		auditor:  auditor,
		source:   source,
		window:   time.Minute,
		interval: 15 * time.Second,
		now:      time.Now,
		logger:   logger.With(zap.String("mod", "sentinel")),
		seen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run крутит Sweep по тикеру до отмены контекста.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sentinel watcher started",
		zap.Duration("window", w.window), zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sentinel watcher stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("sentinel sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep делает один проход. Окно событий → Audit → лог, метрика, реакция.
// Каждое событие участвует не более чем в одном алерте своего агента,
// поэтому разблокировка оператором держится до новых событий.
func (w *Watcher) Sweep(ctx context.Context) ([]Alert, error) {
	since := w.now().Add(-w.window)
	events, err := w.source.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	w.mu.Lock()
	events = w.unseen(events)
	alerts := w.auditor.Audit(events)
	w.mark(events, alerts, since)
	w.mu.Unlock()

	for _, a := range alerts {
		w.logger.Warn("behavioral anomaly detected",
			zap.String("agent_id", a.AgentID),
			zap.String("rule", string(a.Rule)),
			zap.String("severity", string(a.Severity)),
			zap.Int("count", a.Count),
		)
		if w.alerts != nil {
			w.alerts.WithLabelValues(string(a.Rule), string(a.Severity)).Inc()
		}

		if a.Severity != SeverityCritical || w.responder == nil {
			continue
		}
		if err := w.responder.Respond(ctx, a); err != nil {
			// не прерываем проход: остальные агенты тоже должны получить реакцию
			w.logger.Error("alert response failed", zap.String("agent_id", a.AgentID), zap.Error(err))
		}
	}
	return alerts, nil
}

func (w *Watcher) unseen(events []domain.Event) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if mark, ok := w.seen[e.AgentID]; ok && !e.Timestamp.After(mark) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (w *Watcher) mark(events []domain.Event, alerts []Alert, since time.Time) {
	alerted := make(map[string]struct{}, len(alerts))
	for _, a := range alerts {
		alerted[a.AgentID] = struct{}{}
	}
	for _, e := range events {
		if _, ok := alerted[e.AgentID]; !ok {
			continue
		}
		if e.Timestamp.After(w.seen[e.AgentID]) {
			w.seen[e.AgentID] = e.Timestamp
		}
	}
	// отметки старше окна ничего не отсекают
	for id, mark := range w.seen {
		if mark.Before(since) {
			delete(w.seen, id)
		}
	}
}
