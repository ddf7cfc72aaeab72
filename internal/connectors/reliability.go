package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ReliabilityConfig struct {
	Name             string        `mapstructure:"name"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Attempts         uint          `mapstructure:"attempts"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
	RatePerSecond    float64       `mapstructure:"rate_per_second"`
	Burst            int           `mapstructure:"burst"`
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:             "connector",
		MaxRequests:      3,
		Interval:         5 * time.Second,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
		Attempts:         3,
		CallTimeout:      10 * time.Second,
		RatePerSecond:    100,
		Burst:            20,
	}
}

// ReliabilityWrapper: rate limiter → circuit breaker → retry с таймаутом на попытку.
type ReliabilityWrapper struct {
	next    Caller
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliabilityConfig
}

// NewReliabilityWrapper. cbState (опционально) это gauge с лейблом connector_id (0 closed, 1 open, 0.5 half-open).
func NewReliabilityWrapper(next Caller, cfg ReliabilityConfig, cbState *prometheus.GaugeVec, logger *zap.Logger) *ReliabilityWrapper {
	def := DefaultReliabilityConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond, cfg.Burst = def.RatePerSecond, def.Burst
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	log := logger.With(zap.String("mod", "reliability"), zap.String("connector_id", cfg.Name))
	threshold := cfg.FailureThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
			if cbState == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				cbState.WithLabelValues(name).Set(1)
			case gobreaker.StateHalfOpen:
				cbState.WithLabelValues(name).Set(0.5)
			default:
				cbState.WithLabelValues(name).Set(0)
			}
		},
	})

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:     cfg,
	}
}

func (w *ReliabilityWrapper) Call(ctx context.Context, capID string, payload []byte) ([]byte, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	res, err := w.cb.Execute(func() (interface{}, error) {
		var out []byte
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// коннектор сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		err := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			var callErr error
			out, callErr = w.next.Call(tCtx, capID, payload)
			return callErr
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (w *ReliabilityWrapper) State() gobreaker.State { return w.cb.State() }
