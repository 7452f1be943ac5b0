// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"fmt"
	"log/slog"
	"time"
)

// Default values.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultCloseTimeout   = 10 * time.Second
	DefaultAwaitDuration  = 20 * time.Second
	DefaultEvictInterval  = 30 * time.Second
)

// Options configures the consumer.
type Options struct {
	// RequestTimeout bounds how long the synchronous call forms wait for
	// their asynchronous result. Zero waits indefinitely. The underlying
	// request is never cancelled by this timeout.
	RequestTimeout time.Duration

	// CloseTimeout bounds how long Close waits for in-flight operations
	// to drain before finalizing.
	CloseTimeout time.Duration

	// AwaitDuration is the long-poll window forwarded to the gateway when
	// no messages are immediately available.
	AwaitDuration time.Duration

	// EvictInterval is how often the background sweep removes stale lease
	// entries. Zero disables the sweep; eviction then happens only on
	// access.
	EvictInterval time.Duration

	// Logger for consumer events. Nil falls back to slog.Default.
	Logger *slog.Logger

	// EnableMetrics registers OpenTelemetry instruments on the global
	// meter provider.
	EnableMetrics bool
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		RequestTimeout: DefaultRequestTimeout,
		CloseTimeout:   DefaultCloseTimeout,
		AwaitDuration:  DefaultAwaitDuration,
		EvictInterval:  DefaultEvictInterval,
	}
}

// SetRequestTimeout sets the synchronous call timeout.
func (o *Options) SetRequestTimeout(d time.Duration) *Options {
	o.RequestTimeout = d
	return o
}

// SetCloseTimeout sets the shutdown drain bound.
func (o *Options) SetCloseTimeout(d time.Duration) *Options {
	o.CloseTimeout = d
	return o
}

// SetAwaitDuration sets the gateway long-poll window.
func (o *Options) SetAwaitDuration(d time.Duration) *Options {
	o.AwaitDuration = d
	return o
}

// SetEvictInterval sets the lease sweep interval.
func (o *Options) SetEvictInterval(d time.Duration) *Options {
	o.EvictInterval = d
	return o
}

// SetLogger sets the logger.
func (o *Options) SetLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// SetEnableMetrics toggles OpenTelemetry instruments.
func (o *Options) SetEnableMetrics(enable bool) *Options {
	o.EnableMetrics = enable
	return o
}

// Validate checks option consistency.
func (o *Options) Validate() error {
	if o.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout", ErrInvalidArgument)
	}
	if o.CloseTimeout <= 0 {
		return fmt.Errorf("%w: close timeout must be positive", ErrInvalidArgument)
	}
	if o.AwaitDuration < 0 {
		return fmt.Errorf("%w: negative await duration", ErrInvalidArgument)
	}
	if o.EvictInterval < 0 {
		return fmt.Errorf("%w: negative evict interval", ErrInvalidArgument)
	}
	return nil
}
