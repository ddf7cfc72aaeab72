package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Bucket: token bucket одной сессии. Под капотом rate.Limiter:
// burst = capacity, непрерывное пополнение refillPerSecond токенов в секунду,
// стартует полным. Параметры задаются только при создании.
//
// Рассчитан на один in-flight Take на инстанс (одна корзина на сессию).
type Bucket struct {
	limiter  *rate.Limiter
	capacity int
	rate     float64
	now      func() time.Time
}

// State: снимок состояния корзины.
type State struct {
	Capacity            int       `json:"capacity"`
	Tokens              float64   `json:"tokens"`
	RefillRatePerSecond float64   `json:"refill_rate_per_second"`
	At                  time.Time `json:"at"`
}

type Option func(*Bucket)

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

func New(capacity int, refillPerSecond float64, opts ...Option) *Bucket {
	if capacity < 0 {
		capacity = 0
	}
	if refillPerSecond < 0 {
		refillPerSecond = 0
	}
	b := &Bucket{
		limiter:  rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		capacity: capacity,
		rate:     refillPerSecond,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Take лениво пополняет корзину по прошедшему времени и, если токенов хватает,
// списывает n и возвращает true. Иначе false, состояние не меняется.
func (b *Bucket) Take(n int) bool {
	if n <= 0 {
		return true
	}
	return b.limiter.AllowN(b.now(), n)
}

func (b *Bucket) Capacity() int { return b.capacity }

func (b *Bucket) State() State {
	at := b.now()
	tokens := b.limiter.TokensAt(at)
	if tokens < 0 {
		tokens = 0
	}
	return State{
		Capacity:            b.capacity,
		Tokens:              tokens,
		RefillRatePerSecond: b.rate,
		At:                  at,
	}
}
