// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package consumer implements a thread-safe pull consumer with manual
// acknowledgment. Callers fetch bounded batches, process at their own pace,
// then acknowledge or refresh each message's visibility window. Delivery is
// at-least-once: a message never acknowledged before its window closes is
// redelivered by the broker under a fresh receipt handle.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/pullmq/gateway"
)

// Consumer is a pull consumer bound to one consumer group. All methods are
// safe for concurrent use; the consumer is the unit of thread safety, not any
// single call.
type Consumer struct {
	group    string
	clientID string
	opts     *Options

	gw     gateway.Gateway
	state  *stateMachine
	subs   *subscriptionRegistry
	leases *leaseTracker

	logger  *slog.Logger
	metrics *consumerMetrics

	// opMu guards the in-flight operation count. The STARTED check and
	// the increment happen under one lock so no operation can slip in
	// between Close flipping the state and draining the count.
	opMu    sync.Mutex
	ops     int
	opsDone chan struct{}

	// Created in New, not Start, so a Close racing Start never observes
	// nil channels.
	stopCh    chan struct{}
	sweepDone chan struct{}

	closeMu sync.Mutex
}

// New creates a consumer in the NEW state. Start must be called before any
// data-plane operation.
func New(group string, gw gateway.Gateway, opts *Options) (*Consumer, error) {
	if group == "" {
		return nil, fmt.Errorf("%w: empty consumer group", ErrInvalidArgument)
	}
	if gw == nil {
		return nil, fmt.Errorf("%w: nil gateway", ErrInvalidArgument)
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Consumer{
		group:     group,
		clientID:  group + "-" + uuid.NewString(),
		opts:      opts,
		gw:        gw,
		state:     newStateMachine(),
		subs:      newSubscriptionRegistry(),
		leases:    newLeaseTracker(),
		logger:    logger.With(slog.String("group", group)),
		stopCh:    make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	if opts.EnableMetrics {
		m, err := newConsumerMetrics(group)
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}

	return c, nil
}

// GetConsumerGroup returns the load-balancing group identity.
func (c *Consumer) GetConsumerGroup() string {
	return c.group
}

// Start transitions the consumer to STARTED and begins the lease sweep.
func (c *Consumer) Start() error {
	if !c.state.transition(StateNew, StateStarted) {
		return fmt.Errorf("%w: start from %s", ErrIllegalState, c.state.get())
	}

	go c.sweepLoop()

	c.logger.Info("consumer started", slog.String("client_id", c.clientID))
	return nil
}

// Subscribe adds or replaces the filter expression for a topic. A later
// subscribe for the same topic discards the old expression entirely; the two
// are never merged. Returns the consumer for chaining.
func (c *Consumer) Subscribe(topic string, expr FilterExpression) (*Consumer, error) {
	if !c.state.isStarted() {
		return c, fmt.Errorf("%w: subscribe while %s", ErrIllegalState, c.state.get())
	}
	if topic == "" {
		return c, fmt.Errorf("%w: empty topic", ErrInvalidArgument)
	}
	if err := expr.validate(); err != nil {
		return c, err
	}

	c.subs.set(topic, expr)
	c.logger.Debug("subscribed",
		slog.String("topic", topic),
		slog.String("type", expr.Type.String()),
		slog.String("expression", expr.Expression))
	return c, nil
}

// Unsubscribe removes the subscription for a topic. Removing an absent topic
// is a no-op. Messages already leased for the topic stay owned until acked or
// expired; removal never recalls them.
func (c *Consumer) Unsubscribe(topic string) (*Consumer, error) {
	if !c.state.isStarted() {
		return c, fmt.Errorf("%w: unsubscribe while %s", ErrIllegalState, c.state.get())
	}

	c.subs.remove(topic)
	c.logger.Debug("unsubscribed", slog.String("topic", topic))
	return c, nil
}

// GetSubscriptionExpressions returns a point-in-time copy of the
// subscription set. The returned map is owned by the caller.
func (c *Consumer) GetSubscriptionExpressions() map[string]FilterExpression {
	return c.subs.snapshot()
}

// Close shuts the consumer down. The first call transitions to CLOSING,
// stops originating new operations, waits a bounded grace period for
// in-flight ack/extend/receive calls to drain, then finalizes to CLOSED.
// Subsequent calls are no-ops. Leases never acknowledged before close are
// abandoned to expire naturally; the broker redelivers them.
func (c *Consumer) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.state.isTerminal() {
		return nil
	}
	// Never started: nothing to drain.
	if c.state.transition(StateNew, StateClosed) {
		return nil
	}
	if !c.state.transition(StateStarted, StateClosing) {
		return nil
	}

	close(c.stopCh)
	<-c.sweepDone

	if !c.drainOps(c.opts.CloseTimeout) {
		c.logger.Warn("close grace period elapsed with operations still in flight",
			slog.Duration("timeout", c.opts.CloseTimeout))
	}

	c.state.set(StateClosed)
	c.logger.Info("consumer closed", slog.Int("abandoned_leases", c.leases.count()))
	return nil
}

// beginOp admits a data-plane operation while the consumer is STARTED. The
// admission is atomic with respect to Close: once CLOSING is visible no new
// operation is admitted, and every admitted one is counted into the drain.
func (c *Consumer) beginOp(op string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.state.isStarted() {
		return fmt.Errorf("%w: %s while %s", ErrIllegalState, op, c.state.get())
	}
	c.ops++
	return nil
}

func (c *Consumer) endOp() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.ops--
	if c.ops == 0 && c.opsDone != nil {
		close(c.opsDone)
		c.opsDone = nil
	}
}

// drainOps waits up to timeout for admitted operations to finish. Outstanding
// network calls are not cancelled; they are merely waited for.
func (c *Consumer) drainOps(timeout time.Duration) bool {
	c.opMu.Lock()
	if c.ops == 0 {
		c.opMu.Unlock()
		return true
	}
	done := make(chan struct{})
	c.opsDone = done
	c.opMu.Unlock()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// sweepLoop passively garbage-collects stale lease entries. Redelivery of
// expired messages is the broker's responsibility; the sweep only drops the
// local bookkeeping.
func (c *Consumer) sweepLoop() {
	defer close(c.sweepDone)

	if c.opts.EvictInterval == 0 {
		<-c.stopCh
		return
	}

	ticker := time.NewTicker(c.opts.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.leases.sweep(); removed > 0 {
				c.metrics.recordEvicted(context.Background(), removed)
				c.logger.Debug("evicted stale leases", slog.Int("count", removed))
			}
		case <-c.stopCh:
			return
		}
	}
}

