package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker is
// open or its half-open trial budget is spent.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls a per-source circuit breaker.
type BreakerConfig struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Ignore marks errors that say nothing about upstream health, such as a
	// provider that simply is not in the registry. They never trip the breaker.
	Ignore func(err error) bool
}

// DefaultBreakerConfig returns a five-failure, one-minute breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Failures: 5, Cooldown: time.Minute}
}

// Breaker guards one upstream source.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker named after the source it guards.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Failures <= 0 {
		cfg.Failures = def.Failures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	threshold := uint32(cfg.Failures)
	ignore := cfg.Ignore

	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return ignore != nil && ignore(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("resilience: circuit breaker state changed",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})}
}

// Name returns the guarded source name.
func (b *Breaker) Name() string { return b.cb.Name() }

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn through the breaker. A rejected call returns ErrCircuitOpen
// without invoking fn.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, eris.Wrapf(ErrCircuitOpen, "source %s", b.cb.Name())
	}
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
