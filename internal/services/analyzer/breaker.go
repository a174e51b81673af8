package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("description service circuit breaker is open")

// BreakerConfig holds the trip and recovery settings.
type BreakerConfig struct {
	// MaxFailures consecutive failures trip the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before half-open.
	OpenTimeout time.Duration
	// HalfOpenMaxSuccesses successes in half-open close the circuit again.
	HalfOpenMaxSuccesses uint32
}

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(cfg BreakerConfig, logger zerolog.Logger) *breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 1
	}

	settings := gobreaker.Settings{
		Name:        "DescriptionService",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// execute runs fn through the breaker. A context already done counts as a failure.
func (b *breaker) execute(ctx context.Context, fn func() (string, error)) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitOpen
		}
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}

func (b *breaker) state() string {
	return b.cb.State().String()
}
