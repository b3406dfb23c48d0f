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

/*
Package tracing provides distributed tracing and metrics for the workflow
handler and executor handler processes.

# Overview

The tracing package supports:

  - Distributed tracing via OpenTelemetry, one span per invocation
  - Prometheus metrics for runs, enqueued steps, retries, and queue sends
  - Per-invocation correlation IDs

# Quick Start

Create an OTel provider:

	cfg := tracing.Config{
	    ServiceName:    "workflow-handler",
	    ServiceVersion: "1.0.0",
	    Sampling: tracing.SamplerConfig{
	        Enabled: true,
	        Rate:    0.1,
	    },
	}

	provider, err := tracing.NewOTelProviderWithConfig(cfg)

Get a tracer and create spans:

	tracer := provider.Tracer("workflow")

	ctx, span := tracer.Start(ctx, "engine.invoke",
	    observability.WithSpanKind(observability.SpanKindServer),
	)
	defer span.End()

# Correlation IDs

Each handler invocation generates its own correlation ID and stores it in
the Go context; the ID is not carried in queue messages, so it does not
link the invocations of one run:

	correlationID := tracing.FromContext(ctx)

# Metrics Collection

	collector := provider.MetricsCollector()
	collector.RecordRunStart(ctx, runID, workflow)
	collector.RecordStepEnqueued(ctx, workflow, stepName, taskKey)
	collector.RecordRunComplete(ctx, runID, workflow, "Completed", duration)

Metrics exposed via MetricsHandler():

  - switchboard_runs_total{workflow,status}
  - switchboard_run_duration_seconds{workflow,status}
  - switchboard_steps_enqueued_total{workflow,step,task_key}
  - switchboard_retries_total{workflow,step}
  - switchboard_queue_sends_total{endpoint,status}

# Key Components

  - OTelProvider: OpenTelemetry SDK wrapper
  - MetricsCollector: Prometheus metrics recording
  - CorrelationID: per-invocation correlation IDs
  - Sampler: configurable trace sampling
*/
package tracing
