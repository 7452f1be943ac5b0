// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker wrapped around a Gateway.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transport failures
	// before the circuit opens.
	FailureThreshold uint32

	// ResetTimeout is how long the circuit stays open before allowing a
	// probe request through.
	ResetTimeout time.Duration

	// Logger receives state-change events. Nil falls back to slog.Default.
	Logger *slog.Logger
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

type breakerGateway struct {
	next     Gateway
	breakers map[string]*gobreaker.CircuitBreaker
}

// WithBreaker wraps gw so that repeated transport failures fail fast instead
// of piling up on a dead broker. Fetch, acknowledge and extend trip
// independently. Broker-reported verdicts (ErrHandleUnknown, ErrHandleExpired,
// ErrServer) are successful round trips and never count as failures. The
// breaker performs no retries of its own.
func WithBreaker(gw Gateway, cfg BreakerConfig) Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, op := range []string{"fetch", "ack", "extend"} {
		breakers[op] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        op,
			MaxRequests: 1,
			Timeout:     cfg.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrHandleUnknown) ||
					errors.Is(err, ErrHandleExpired) ||
					errors.Is(err, ErrServer)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("gateway circuit breaker state changed",
					slog.String("operation", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	return &breakerGateway{next: gw, breakers: breakers}
}

func (g *breakerGateway) Fetch(ctx context.Context, req FetchRequest) ([]Record, error) {
	res, err := g.breakers["fetch"].Execute(func() (any, error) {
		return g.next.Fetch(ctx, req)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return res.([]Record), nil
}

func (g *breakerGateway) Acknowledge(ctx context.Context, req AckRequest) error {
	_, err := g.breakers["ack"].Execute(func() (any, error) {
		return nil, g.next.Acknowledge(ctx, req)
	})
	return wrapBreakerErr(err)
}

func (g *breakerGateway) ChangeInvisible(ctx context.Context, req ExtendRequest) error {
	_, err := g.breakers["extend"].Execute(func() (any, error) {
		return nil, g.next.ChangeInvisible(ctx, req)
	})
	return wrapBreakerErr(err)
}

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("gateway unavailable: %w", err)
	}
	return err
}
