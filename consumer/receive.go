// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/pullmq/gateway"
)

// Receive fetches up to maxMessageNum messages, registering each one in the
// lease tracker with the given invisible duration before returning it. If no
// messages are available the call waits out the gateway long poll and returns
// an empty slice, not an error. The synchronous form blocks on the
// asynchronous one; its wait is bounded by RequestTimeout plus the long-poll
// window.
func (c *Consumer) Receive(ctx context.Context, maxMessageNum int, invisibleDuration time.Duration) ([]*MessageView, error) {
	return c.ReceiveAsync(ctx, maxMessageNum, invisibleDuration).Wait(ctx, c.opts.RequestTimeout+c.opts.AwaitDuration)
}

// ReceiveAsync is the asynchronous form of Receive.
func (c *Consumer) ReceiveAsync(ctx context.Context, maxMessageNum int, invisibleDuration time.Duration) *ReceiveFuture {
	f := newReceiveFuture()

	if maxMessageNum < 1 {
		f.complete(nil, fmt.Errorf("%w: maxMessageNum must be at least 1, got %d", ErrInvalidArgument, maxMessageNum))
		return f
	}
	if invisibleDuration <= 0 {
		f.complete(nil, fmt.Errorf("%w: invisibleDuration must be positive, got %v", ErrInvalidArgument, invisibleDuration))
		return f
	}
	// Admitted before the goroutine starts so a concurrent Close drains
	// the whole fetch-register-handoff sequence: a message taken off the
	// wire is always registered before the consumer finalizes.
	if err := c.beginOp("receive"); err != nil {
		f.complete(nil, err)
		return f
	}
	go func() {
		defer c.endOp()
		f.complete(c.doReceive(ctx, maxMessageNum, invisibleDuration))
	}()
	return f
}

func (c *Consumer) doReceive(ctx context.Context, maxMessageNum int, invisibleDuration time.Duration) ([]*MessageView, error) {
	start := time.Now()

	snapshot := c.subs.snapshot()
	if len(snapshot) == 0 {
		return []*MessageView{}, nil
	}

	subs := make([]gateway.Subscription, 0, len(snapshot))
	for topic, expr := range snapshot {
		subs = append(subs, gateway.Subscription{
			Topic:          topic,
			ExpressionType: expr.Type.String(),
			Expression:     expr.Expression,
		})
	}

	records, err := c.gw.Fetch(ctx, gateway.FetchRequest{
		Group:             c.group,
		Subscriptions:     subs,
		MaxMessages:       maxMessageNum,
		InvisibleDuration: invisibleDuration,
		AwaitDuration:     c.opts.AwaitDuration,
	})
	if err != nil {
		c.metrics.recordError(ctx, "receive")
		return nil, classifyGatewayErr(err, "fetch")
	}

	views := make([]*MessageView, 0, len(records))
	for _, rec := range records {
		c.leases.register(rec.ReceiptHandle, rec.Topic, rec.MessageID, invisibleDuration)
		views = append(views, &MessageView{
			MessageID:       rec.MessageID,
			Topic:           rec.Topic,
			Tag:             rec.Tag,
			Keys:            rec.Keys,
			Properties:      rec.Properties,
			Body:            rec.Body,
			BornTime:        rec.BornTime,
			DeliveryAttempt: rec.DeliveryAttempt,
			ReceiptHandle:   rec.ReceiptHandle,
		})
	}

	c.metrics.recordReceive(ctx, len(views), time.Since(start))
	if len(views) > 0 {
		c.logger.Debug("received messages",
			slog.Int("count", len(views)),
			slog.Duration("invisible", invisibleDuration))
	}
	return views, nil
}

// classifyGatewayErr maps transport outcomes onto the consumer error
// taxonomy. Broker verdict errors are handled by the callers before this.
func classifyGatewayErr(err error, op string) error {
	switch {
	case errors.Is(err, gateway.ErrServer):
		return fmt.Errorf("%w: %s: %v", ErrServer, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
	}
}
