// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// consumerMetrics holds OpenTelemetry instruments for the pull consumer.
type consumerMetrics struct {
	meter metric.Meter
	attrs metric.MeasurementOption

	messagesReceived metric.Int64Counter
	messagesAcked    metric.Int64Counter
	leasesExtended   metric.Int64Counter
	leasesEvicted    metric.Int64Counter
	errorsTotal      metric.Int64Counter

	receiveDuration metric.Float64Histogram
}

func newConsumerMetrics(group string) (*consumerMetrics, error) {
	m := &consumerMetrics{
		meter: otel.Meter("pullmq-consumer"),
		attrs: metric.WithAttributes(attribute.String("group", group)),
	}

	var err error

	m.messagesReceived, err = m.meter.Int64Counter(
		"pullmq.messages.received",
		metric.WithDescription("Messages fetched and leased"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesReceived counter: %w", err)
	}

	m.messagesAcked, err = m.meter.Int64Counter(
		"pullmq.messages.acked",
		metric.WithDescription("Messages acknowledged to the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesAcked counter: %w", err)
	}

	m.leasesExtended, err = m.meter.Int64Counter(
		"pullmq.leases.extended",
		metric.WithDescription("Visibility deadline refreshes committed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create leasesExtended counter: %w", err)
	}

	m.leasesEvicted, err = m.meter.Int64Counter(
		"pullmq.leases.evicted",
		metric.WithDescription("Stale lease entries removed by the sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create leasesEvicted counter: %w", err)
	}

	m.errorsTotal, err = m.meter.Int64Counter(
		"pullmq.errors.total",
		metric.WithDescription("Failed consumer operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create errorsTotal counter: %w", err)
	}

	m.receiveDuration, err = m.meter.Float64Histogram(
		"pullmq.receive.duration",
		metric.WithDescription("Receive round trip duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create receiveDuration histogram: %w", err)
	}

	return m, nil
}

func (m *consumerMetrics) recordReceive(ctx context.Context, count int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, int64(count), m.attrs)
	m.receiveDuration.Record(ctx, elapsed.Seconds(), m.attrs)
}

func (m *consumerMetrics) recordAck(ctx context.Context) {
	if m == nil {
		return
	}
	m.messagesAcked.Add(ctx, 1, m.attrs)
}

func (m *consumerMetrics) recordExtend(ctx context.Context) {
	if m == nil {
		return
	}
	m.leasesExtended.Add(ctx, 1, m.attrs)
}

func (m *consumerMetrics) recordEvicted(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.leasesEvicted.Add(ctx, int64(count), m.attrs)
}

func (m *consumerMetrics) recordError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.errorsTotal.Add(ctx, 1, m.attrs, metric.WithAttributes(attribute.String("operation", op)))
}
