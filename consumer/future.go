// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"time"
)

// Future is the async result of an ack or extend request. The asynchronous
// form is the primitive; synchronous calls block on a Future internally.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete resolves the future. Must be called exactly once.
func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the result. It must only be called after Done is closed.
func (f *Future) Err() error {
	return f.err
}

// Wait blocks until the result is available, the timeout passes, or ctx is
// cancelled. A timeout does not cancel the underlying request: it may still
// complete and mutate lease state afterwards.
func (f *Future) Wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		return f.err
	case <-expired:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveFuture is the async result of a receive request.
type ReceiveFuture struct {
	done chan struct{}
	msgs []*MessageView
	err  error
}

func newReceiveFuture() *ReceiveFuture {
	return &ReceiveFuture{done: make(chan struct{})}
}

func (f *ReceiveFuture) complete(msgs []*MessageView, err error) {
	f.msgs = msgs
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *ReceiveFuture) Done() <-chan struct{} {
	return f.done
}

// Result returns the delivered messages. It must only be called after Done
// is closed.
func (f *ReceiveFuture) Result() ([]*MessageView, error) {
	return f.msgs, f.err
}

// Wait blocks for the result with the same semantics as Future.Wait.
func (f *ReceiveFuture) Wait(ctx context.Context, timeout time.Duration) ([]*MessageView, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		return f.msgs, f.err
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
