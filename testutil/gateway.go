// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides an in-memory broker gateway with real visibility
// window semantics for tests and examples.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/pullmq/gateway"
)

// DefaultPollInterval is how often an empty long poll re-checks for
// messages.
const DefaultPollInterval = 10 * time.Millisecond

// queuedMessage is one stored message with its delivery bookkeeping.
type queuedMessage struct {
	messageID string
	topic     string
	tag       string
	body      []byte
	bornTime  time.Time

	committed     bool
	attempt       int
	currentHandle string
	visibleAt     time.Time
}

// Gateway is an in-memory broker gateway. Each fetch claims visible messages
// by issuing a fresh receipt handle per delivery attempt and hiding the
// message until the invisible duration passes; un-acknowledged messages then
// become fetchable again under a new handle, exactly like a broker-side
// redelivery.
type Gateway struct {
	mu      sync.Mutex
	topics  map[string][]*queuedMessage
	handles map[string]*queuedMessage

	// Fail injection. When set, the corresponding call returns the error
	// without touching state.
	FetchErr  error
	AckErr    error
	ExtendErr error

	// PollInterval tunes the long-poll re-check period.
	PollInterval time.Duration

	now func() time.Time
}

// NewGateway creates an empty in-memory gateway.
func NewGateway() *Gateway {
	return &Gateway{
		topics:       make(map[string][]*queuedMessage),
		handles:      make(map[string]*queuedMessage),
		PollInterval: DefaultPollInterval,
		now:          time.Now,
	}
}

// SetClock overrides the time source.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Seed stores messages on a topic and returns their message IDs.
func (g *Gateway) Seed(topic, tag string, bodies ...[]byte) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(bodies))
	for _, body := range bodies {
		msg := &queuedMessage{
			messageID: uuid.NewString(),
			topic:     topic,
			tag:       tag,
			body:      body,
			bornTime:  g.now(),
		}
		g.topics[topic] = append(g.topics[topic], msg)
		ids = append(ids, msg.messageID)
	}
	return ids
}

// Fetch claims up to MaxMessages visible records matching the request's
// subscriptions. With nothing available it polls until AwaitDuration passes,
// then returns an empty slice.
func (g *Gateway) Fetch(ctx context.Context, req gateway.FetchRequest) ([]gateway.Record, error) {
	g.mu.Lock()
	fetchErr := g.FetchErr
	now := g.now
	g.mu.Unlock()
	if fetchErr != nil {
		return nil, fetchErr
	}

	deadline := now().Add(req.AwaitDuration)
	for {
		records := g.claim(req)
		if len(records) > 0 {
			return records, nil
		}
		if req.AwaitDuration <= 0 || !now().Before(deadline) {
			return []gateway.Record{}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.PollInterval):
		}
	}
}

func (g *Gateway) claim(req gateway.FetchRequest) []gateway.Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	records := make([]gateway.Record, 0, req.MaxMessages)
	for _, sub := range req.Subscriptions {
		for _, msg := range g.topics[sub.Topic] {
			if len(records) >= req.MaxMessages {
				return records
			}
			if msg.committed || now.Before(msg.visibleAt) || !matches(sub, msg.tag) {
				continue
			}

			msg.attempt++
			msg.currentHandle = uuid.NewString()
			msg.visibleAt = now.Add(req.InvisibleDuration)
			g.handles[msg.currentHandle] = msg

			records = append(records, gateway.Record{
				MessageID:       msg.messageID,
				Topic:           msg.topic,
				Tag:             msg.tag,
				Body:            append([]byte(nil), msg.body...),
				BornTime:        msg.bornTime,
				DeliveryAttempt: msg.attempt,
				ReceiptHandle:   msg.currentHandle,
			})
		}
	}
	return records
}

// matches applies a tag filter. SQL92 expressions are stored and forwarded
// by the consumer but not evaluated here; they match everything.
func matches(sub gateway.Subscription, tag string) bool {
	if sub.ExpressionType != "TAG" || sub.Expression == "*" {
		return true
	}
	for _, want := range strings.Split(sub.Expression, "||") {
		if strings.TrimSpace(want) == tag {
			return true
		}
	}
	return false
}

// Acknowledge commits the delivery. A handle that was never issued, already
// committed, or superseded by a redelivery yields ErrHandleUnknown.
func (g *Gateway) Acknowledge(_ context.Context, req gateway.AckRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.AckErr != nil {
		return g.AckErr
	}

	msg, ok := g.handles[req.ReceiptHandle]
	if !ok || msg.committed || msg.currentHandle != req.ReceiptHandle {
		return gateway.ErrHandleUnknown
	}

	msg.committed = true
	return nil
}

// ChangeInvisible refreshes the visibility deadline for a live handle.
func (g *Gateway) ChangeInvisible(_ context.Context, req gateway.ExtendRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ExtendErr != nil {
		return g.ExtendErr
	}

	msg, ok := g.handles[req.ReceiptHandle]
	if !ok || msg.committed || msg.currentHandle != req.ReceiptHandle {
		return gateway.ErrHandleUnknown
	}
	if !g.now().Before(msg.visibleAt) {
		return gateway.ErrHandleExpired
	}

	msg.visibleAt = g.now().Add(req.InvisibleDuration)
	return nil
}

// Committed reports whether the message was acknowledged.
func (g *Gateway) Committed(messageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, msgs := range g.topics {
		for _, msg := range msgs {
			if msg.messageID == messageID {
				return msg.committed
			}
		}
	}
	return false
}

// Uncommitted returns the number of stored messages on the topic that have
// not been acknowledged, whether visible or leased.
func (g *Gateway) Uncommitted(topic string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, msg := range g.topics[topic] {
		if !msg.committed {
			n++
		}
	}
	return n
}
