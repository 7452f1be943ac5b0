// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

type throttleGateway struct {
	next    Gateway
	limiter *rate.Limiter
}

// WithThrottle wraps gw so that fetch requests are bounded to r per second
// with the given burst allowance. Over-limit fetches wait for a token,
// honoring ctx cancellation. Acknowledge and extend are never throttled; a
// delayed ack risks losing the visibility window for no benefit.
func WithThrottle(gw Gateway, r float64, burst int) Gateway {
	return &throttleGateway{
		next:    gw,
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}
}

func (g *throttleGateway) Fetch(ctx context.Context, req FetchRequest) ([]Record, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.next.Fetch(ctx, req)
}

func (g *throttleGateway) Acknowledge(ctx context.Context, req AckRequest) error {
	return g.next.Acknowledge(ctx, req)
}

func (g *throttleGateway) ChangeInvisible(ctx context.Context, req ExtendRequest) error {
	return g.next.ChangeInvisible(ctx, req)
}
