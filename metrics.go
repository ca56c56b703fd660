// metrics.go: OpenTelemetry observability counters for buffer and dispatcher events
//
// Copyright (c) 2026 ausimian
// SPDX-License-Identifier: MIT

package lokiagent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// handlerMetrics is the supplemented observability hook of spec §7
// ("recommended, not required"): a counter per buffer insert, overflow
// drop, successful batch push, and push failure, modeled on
// rivaas-dev-rivaas/metrics' injectable-meter pattern. A nil Meter on
// HandlerConfig resolves to a no-op meter, so the counters are always
// safe to call and cost nothing when observability isn't wired up.
type handlerMetrics struct {
	attr metric.AddOption

	stored        metric.Int64Counter
	dropped       metric.Int64Counter
	batchesPushed metric.Int64Counter
	pushFailures  metric.Int64Counter
}

func newHandlerMetrics(id string, meter metric.Meter) *handlerMetrics {
	if meter == nil {
		meter = noop.Meter{}
	}

	m := &handlerMetrics{attr: metric.WithAttributes(attribute.String("handler_id", id))}
	m.stored, _ = meter.Int64Counter("loki_agent.entries_stored")
	m.dropped, _ = meter.Int64Counter("loki_agent.entries_dropped")
	m.batchesPushed, _ = meter.Int64Counter("loki_agent.batches_pushed")
	m.pushFailures, _ = meter.Int64Counter("loki_agent.push_failures")
	return m
}

func (m *handlerMetrics) onStore() {
	m.stored.Add(context.Background(), 1, m.attr)
}

func (m *handlerMetrics) onDrop(n int) {
	m.dropped.Add(context.Background(), int64(n), m.attr)
}

func (m *handlerMetrics) onBatchPushed(int) {
	m.batchesPushed.Add(context.Background(), 1, m.attr)
}

func (m *handlerMetrics) onPushFailure() {
	m.pushFailures.Add(context.Background(), 1, m.attr)
}
