// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector collects Prometheus-compatible metrics for workflow-engine
// invocations: runs, steps enqueued, retries, and queue send latency.
type MetricsCollector struct {
	meter metric.Meter

	runsTotal           metric.Int64Counter
	stepsEnqueuedTotal  metric.Int64Counter
	retriesTotal        metric.Int64Counter
	queueSendTotal      metric.Int64Counter

	runDuration      metric.Float64Histogram
	stepDuration     metric.Float64Histogram
	queueSendLatency metric.Float64Histogram

	activeRuns   map[string]bool
	activeRunsMu sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("switchboard")

	mc := &MetricsCollector{
		meter:      meter,
		activeRuns: make(map[string]bool),
	}

	var err error

	mc.runsTotal, err = meter.Int64Counter(
		"switchboard_runs_total",
		metric.WithDescription("Total number of workflow runs that reached a terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepsEnqueuedTotal, err = meter.Int64Counter(
		"switchboard_steps_enqueued_total",
		metric.WithDescription("Total number of steps (or parallel tasks) enqueued to the executor queue"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	mc.retriesTotal, err = meter.Int64Counter(
		"switchboard_retries_total",
		metric.WithDescription("Total number of step retries triggered by task failure"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	mc.queueSendTotal, err = meter.Int64Counter(
		"switchboard_queue_sends_total",
		metric.WithDescription("Total number of queue send operations, by outcome"),
		metric.WithUnit("{send}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"switchboard_run_duration_seconds",
		metric.WithDescription("Wall-clock time from run creation to Completed/OutOfRetries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepDuration, err = meter.Float64Histogram(
		"switchboard_step_duration_seconds",
		metric.WithDescription("Time a single engine invocation spends deciding and persisting state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.queueSendLatency, err = meter.Float64Histogram(
		"switchboard_queue_send_duration_seconds",
		metric.WithDescription("Latency of a single Queue.Send call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"switchboard_active_runs",
		metric.WithDescription("Number of runs this process has observed as InProcess and not yet Completed/OutOfRetries"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			mc.activeRunsMu.RLock()
			count := len(mc.activeRuns)
			mc.activeRunsMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordRunStart marks a run as InProcess for the active-runs gauge.
func (mc *MetricsCollector) RecordRunStart(_ context.Context, runID, workflow string) {
	mc.activeRunsMu.Lock()
	mc.activeRuns[workflow+"/"+runID] = true
	mc.activeRunsMu.Unlock()
}

// RecordRunComplete records a run reaching a terminal status (Completed or OutOfRetries).
func (mc *MetricsCollector) RecordRunComplete(ctx context.Context, runID, workflow, status string, duration time.Duration) {
	mc.activeRunsMu.Lock()
	delete(mc.activeRuns, workflow+"/"+runID)
	mc.activeRunsMu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflow),
		attribute.String("status", status),
	}

	mc.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStepEnqueued records a step (or one parallel task) being enqueued to the executor queue.
func (mc *MetricsCollector) RecordStepEnqueued(ctx context.Context, workflow, stepName, taskKey string) {
	mc.stepsEnqueuedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("step", stepName),
		attribute.String("task_key", taskKey),
	))
}

// RecordRetry records a step being re-enqueued after a task failure.
func (mc *MetricsCollector) RecordRetry(ctx context.Context, workflow, stepName string, retriesRemaining int) {
	mc.retriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("step", stepName),
	))
	_ = retriesRemaining
}

// RecordInvocation records one engine invocation's decision latency.
func (mc *MetricsCollector) RecordInvocation(ctx context.Context, workflow, outcome string, duration time.Duration) {
	mc.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("outcome", outcome),
	))
}

// RecordQueueSend records the outcome and latency of a single Queue.Send call.
func (mc *MetricsCollector) RecordQueueSend(ctx context.Context, endpoint string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	}
	mc.queueSendTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.queueSendLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
