// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package gateway defines the seam between the pull consumer and the broker.
// Implementations own all network I/O; the consumer core never dials anything
// itself.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Broker-reported terminal outcomes. Anything else returned by a Gateway is
// treated by the consumer as a transport-level failure.
var (
	// ErrHandleUnknown means the broker does not recognize the receipt
	// handle, typically because the message was already committed or the
	// handle belongs to a superseded delivery attempt.
	ErrHandleUnknown = errors.New("gateway: receipt handle unknown")

	// ErrHandleExpired means the visibility window for the handle closed
	// before the request arrived; the message may already be visible to
	// other consumers.
	ErrHandleExpired = errors.New("gateway: receipt handle expired")

	// ErrServer is a broker-reported failure that is not worth retrying.
	ErrServer = errors.New("gateway: server error")
)

// Subscription names a topic and the filter the broker should apply to it.
type Subscription struct {
	Topic          string
	ExpressionType string // "TAG" or "SQL92"
	Expression     string
}

// Record is one delivered message as it comes off the wire. ReceiptHandle is
// unique per delivery attempt; a redelivery of the same message carries a new
// handle.
type Record struct {
	MessageID       string
	Topic           string
	Tag             string
	Keys            []string
	Properties      map[string]string
	Body            []byte
	BornTime        time.Time
	DeliveryAttempt int
	ReceiptHandle   string
}

// FetchRequest asks the broker for up to MaxMessages across the given
// subscriptions. Fetched messages become invisible to other consumers in the
// group for InvisibleDuration. AwaitDuration bounds the broker-side long poll
// when no messages are immediately available.
type FetchRequest struct {
	Group             string
	Subscriptions     []Subscription
	MaxMessages       int
	InvisibleDuration time.Duration
	AwaitDuration     time.Duration
}

// AckRequest commits a single delivery.
type AckRequest struct {
	Group         string
	Topic         string
	MessageID     string
	ReceiptHandle string
}

// ExtendRequest moves the visibility deadline of a delivery to
// now + InvisibleDuration.
type ExtendRequest struct {
	Group             string
	Topic             string
	MessageID         string
	ReceiptHandle     string
	InvisibleDuration time.Duration
}

// Gateway performs the fetch/ack/extend wire calls against the broker. All
// methods are safe for concurrent use; the consumer multiplexes every public
// operation over one Gateway.
type Gateway interface {
	// Fetch returns available records, or an empty slice after the long
	// poll window passes with nothing to deliver. An empty result is not
	// an error.
	Fetch(ctx context.Context, req FetchRequest) ([]Record, error)

	// Acknowledge commits the delivery. Returns ErrHandleUnknown if the
	// broker no longer recognizes the handle.
	Acknowledge(ctx context.Context, req AckRequest) error

	// ChangeInvisible refreshes the visibility deadline. Returns
	// ErrHandleExpired if the window already closed, ErrHandleUnknown if
	// the handle is not recognized.
	ChangeInvisible(ctx context.Context, req ExtendRequest) error
}
