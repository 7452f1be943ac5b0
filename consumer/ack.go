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

// Ack commits the message to the broker. It succeeds at most once per
// delivery: a duplicate call fails with ErrAlreadyAcknowledged, an ack for an
// expired or unknown handle with ErrUnknownHandle. The synchronous form
// blocks on the asynchronous one, bounded by RequestTimeout.
func (c *Consumer) Ack(ctx context.Context, msg *MessageView) error {
	return c.AckAsync(ctx, msg).Wait(ctx, c.opts.RequestTimeout)
}

// AckAsync is the asynchronous form of Ack.
func (c *Consumer) AckAsync(ctx context.Context, msg *MessageView) *Future {
	f := newFuture()

	if msg == nil || msg.ReceiptHandle == "" {
		f.complete(fmt.Errorf("%w: message without receipt handle", ErrInvalidArgument))
		return f
	}
	if err := c.beginOp("ack"); err != nil {
		f.complete(err)
		return f
	}
	go func() {
		defer c.endOp()
		f.complete(c.doAck(ctx, msg))
	}()
	return f
}

func (c *Consumer) doAck(ctx context.Context, msg *MessageView) error {
	handle := msg.ReceiptHandle

	// Tracker first: the duplicate-ack race is decided here, under one
	// lock, before any network traffic.
	if err := c.leases.tryAcknowledge(handle); err != nil {
		c.metrics.recordError(ctx, "ack")
		return fmt.Errorf("%w: message %s", err, msg.MessageID)
	}

	err := c.gw.Acknowledge(ctx, gateway.AckRequest{
		Group:         c.group,
		Topic:         msg.Topic,
		MessageID:     msg.MessageID,
		ReceiptHandle: handle,
	})
	switch {
	case err == nil:
		c.metrics.recordAck(ctx)
		c.logger.Debug("acknowledged message",
			slog.String("topic", msg.Topic),
			slog.String("message_id", msg.MessageID))
		return nil

	case errors.Is(err, gateway.ErrHandleUnknown):
		// The broker already committed or superseded this delivery,
		// likely a race with natural expiry and redelivery. The local
		// entry stays consumed; the failure is surfaced, not swallowed.
		c.metrics.recordError(ctx, "ack")
		return fmt.Errorf("%w: message %s: %v", ErrAcknowledgeFailed, msg.MessageID, err)

	default:
		// The commit did not happen; release the handle so the caller
		// may retry at their discretion.
		c.leases.rollbackAcknowledge(handle)
		c.metrics.recordError(ctx, "ack")
		return classifyGatewayErr(err, "acknowledge")
	}
}

// ChangeInvisibleDuration refreshes the message's visibility deadline to
// now + invisibleDuration. It must be called strictly before the current
// deadline; afterwards it fails with ErrLeaseExpired even if the broker round
// trip would have succeeded, because the message may already be visible to
// other consumers. Repeated calls keep re-basing the deadline from the
// current time.
func (c *Consumer) ChangeInvisibleDuration(ctx context.Context, msg *MessageView, invisibleDuration time.Duration) error {
	return c.ChangeInvisibleDurationAsync(ctx, msg, invisibleDuration).Wait(ctx, c.opts.RequestTimeout)
}

// ChangeInvisibleDurationAsync is the asynchronous form of
// ChangeInvisibleDuration.
func (c *Consumer) ChangeInvisibleDurationAsync(ctx context.Context, msg *MessageView, invisibleDuration time.Duration) *Future {
	f := newFuture()

	if msg == nil || msg.ReceiptHandle == "" {
		f.complete(fmt.Errorf("%w: message without receipt handle", ErrInvalidArgument))
		return f
	}
	if invisibleDuration <= 0 {
		f.complete(fmt.Errorf("%w: invisibleDuration must be positive, got %v", ErrInvalidArgument, invisibleDuration))
		return f
	}
	if err := c.beginOp("change invisible duration"); err != nil {
		f.complete(err)
		return f
	}
	go func() {
		defer c.endOp()
		f.complete(c.doChangeInvisible(ctx, msg, invisibleDuration))
	}()
	return f
}

func (c *Consumer) doChangeInvisible(ctx context.Context, msg *MessageView, invisibleDuration time.Duration) error {
	handle := msg.ReceiptHandle

	// Local-tracker-first rejection: an extend that arrives at or past the
	// stored deadline never reaches the broker.
	if err := c.leases.tryExtend(handle); err != nil {
		c.metrics.recordError(ctx, "extend")
		return fmt.Errorf("%w: message %s", err, msg.MessageID)
	}

	err := c.gw.ChangeInvisible(ctx, gateway.ExtendRequest{
		Group:             c.group,
		Topic:             msg.Topic,
		MessageID:         msg.MessageID,
		ReceiptHandle:     handle,
		InvisibleDuration: invisibleDuration,
	})
	switch {
	case err == nil:
		deadline := c.leases.commitExtend(handle, invisibleDuration)
		c.metrics.recordExtend(ctx)
		c.logger.Debug("refreshed visibility deadline",
			slog.String("message_id", msg.MessageID),
			slog.Time("invisible_until", deadline))
		return nil

	case errors.Is(err, gateway.ErrHandleExpired), errors.Is(err, gateway.ErrHandleUnknown):
		// The broker got there first; the lease is gone either way.
		c.leases.abortExtend(handle)
		c.leases.evict(handle)
		c.metrics.recordError(ctx, "extend")
		return fmt.Errorf("%w: message %s: %v", ErrLeaseExpired, msg.MessageID, err)

	default:
		c.leases.abortExtend(handle)
		c.metrics.recordError(ctx, "extend")
		return classifyGatewayErr(err, "change invisible duration")
	}
}
