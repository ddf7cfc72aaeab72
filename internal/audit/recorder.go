// Package audit: асинхронная пакетная запись событий агентов.
//
// Горячий путь (ход оркестратора) только кладёт событие в буферизованный канал;
// воркер копит пачку и пишет её в хранилище по размеру или по таймеру.
// При переполнении событие сбрасывается с логом (load shedding), при Stop
// канал вычитывается до конца и делается финальный flush.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// Storage: куда физически уходят события (Postgres, память).
type Storage interface {
	WriteBatch(ctx context.Context, events []domain.Event) error
}

type Config struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	return c
}

type Recorder struct {
	cfg    Config
	ch     chan domain.Event
	repo   Storage
	fill   prometheus.Gauge
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex // держит close(ch) против конкурентных Record
	closed atomic.Bool
}

type Option func(*Recorder)

// WithBufferGauge: заполненность канала (backpressure) в prometheus.
func WithBufferGauge(g prometheus.Gauge) Option {
	return func(r *Recorder) { r.fill = g }
}

func NewRecorder(repo Storage, cfg Config, logger *zap.Logger, opts ...Option) *Recorder {
	cfg = cfg.withDefaults()
	r := &Recorder{
		cfg:    cfg,
		ch:     make(chan domain.Event, cfg.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop закрывает вход и ждёт, пока воркер допишет остатки. Повторный вызов безопасен.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return
	}
	close(r.ch)
	r.mu.Unlock()

	r.logger.Info("stopping audit recorder: flushing buffer")
	r.wg.Wait()
	r.logger.Info("audit recorder stopped")
}

// Record не блокирует: при переполнении или после Stop событие теряется с записью в лог.
func (r *Recorder) Record(e domain.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		r.logger.Warn("event dropped: recorder is stopped", zap.String("agent_id", e.AgentID))
		return
	}

	select {
	case r.ch <- e:
		if r.fill != nil {
			r.fill.Set(float64(len(r.ch)))
		}
	default:
		r.logger.Error("audit_buffer_overflow",
			zap.String("agent_id", e.AgentID),
			zap.String("type", string(e.Type)),
		)
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]domain.Event, 0, r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// контекст вызывающего к этому моменту может быть уже отменён
		if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
			r.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]domain.Event, 0, r.cfg.BatchSize)
		if r.fill != nil {
			r.fill.Set(float64(len(r.ch)))
		}
	}

	for {
		select {
		case e, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
