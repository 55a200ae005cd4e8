package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breaker wraps a Backend so that repeated connection failures open the
// circuit and later connects fail fast with ErrConnection.
type Breaker struct {
	next   Backend
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

// NewBreaker trips after threshold consecutive failed connects and stays
// open for cooldown.
func NewBreaker(next Backend, threshold uint32, cooldown time.Duration, logger zerolog.Logger) *Breaker {
	if threshold == 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	b := &Breaker{next: next, logger: logger.With().Str("component", "breaker").Logger()}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mail-backend",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return b
}

// Connect opens a session through the circuit breaker.
func (b *Breaker) Connect(ctx context.Context) (Session, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Connect(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return nil, err
	}
	return res.(Session), nil
}

// State reports the current breaker state.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
