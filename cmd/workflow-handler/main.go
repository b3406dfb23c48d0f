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

// Command workflow-handler is the serverless entrypoint a deployment wires
// to the invocation queue (§6.4): it reads one invocation-queue message,
// calls Init, runs the author's program, calls Done, and exits 0 when the
// resulting status code is 2xx and 1 otherwise. The author's program itself — which steps to
// call, in what order, reading the cache to branch — lives outside this
// repository (spec.md §1 "the user's task bodies" are out of scope); main
// below runs a two-step illustration wiring that proves Init/Call/Done end
// to end, the way the teacher's cmd/conductord wires a daemon loop around
// a config-selected backend without owning what runs inside it.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	internallog "github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/tracing"

	"github.com/tombee/switchboard/internal/config"
	"github.com/tombee/switchboard/internal/handler"
	"github.com/tombee/switchboard/pkg/observability"
	"github.com/tombee/switchboard/pkg/workflow"
)

// buildVersion tags the traces and metrics this process emits; override at
// link time with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	logger := internallog.New(internallog.FromEnv())
	slog.SetDefault(logger)

	os.Exit(run(logger))
}

func run(logger *slog.Logger) int {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", internallog.Error(err))
		return 1
	}

	rawContext, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read invocation message from stdin", internallog.Error(err))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backends, err := handler.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage/queue backends", internallog.Error(err))
		return 1
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn("failed to release backend resources", internallog.Error(err))
		}
	}()

	provider, err := tracing.NewOTelProviderWithConfig(tracing.Config{
		ServiceName:    "workflow-handler",
		ServiceVersion: buildVersion,
		Sampling:       tracing.SamplerConfig{Enabled: true, Rate: cfg.TraceSampleRate, AlwaysSampleErrors: true},
	})
	if err != nil {
		logger.Error("failed to start tracing provider", internallog.Error(err))
		return 1
	}
	defer func() {
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("failed to shut down tracing provider", internallog.Error(err))
		}
	}()

	corrID := tracing.NewCorrelationID()
	ctx = tracing.ToContext(ctx, corrID)
	logger = internallog.WithComponent(logger, "workflow-handler")

	tracer := provider.Tracer("switchboard.workflow-handler")
	ctx, span := tracer.Start(ctx, "workflow-handler.invoke")
	defer span.End()
	span.SetAttributes(map[string]any{"correlation_id": corrID.String(), "workflow": cfg.WorkflowName})

	middleware := internallog.NewHandlerMiddleware(logger)
	req := &internallog.InvocationRequest{
		Handler:       "workflow",
		CorrelationID: corrID.String(),
		Workflow:      cfg.WorkflowName,
	}

	status, err := middleware.Wrap(req, func() (int, error) {
		eng, err := workflow.Init(ctx, backends.Storage, backends.Queue, cfg.WorkflowName, cfg.DefaultRetries, rawContext, logger)
		if err != nil {
			logger.Error("failed to initialize workflow", internallog.Error(err))
			span.RecordError(err)
			return 0, err
		}
		defer workflow.Reset()
		eng.SetMetrics(provider.MetricsCollector())

		if err := runProgram(ctx, eng); err != nil {
			span.RecordError(err)
			logger.Error("workflow program failed", internallog.Error(err))
			return 0, err
		}

		st, err := workflow.Done(ctx)
		if err != nil {
			span.RecordError(err)
			logger.Error("failed to finalize workflow", internallog.Error(err))
			return 0, err
		}
		return st, nil
	})
	if err != nil {
		span.SetStatus(observability.StatusCodeError, "")
		return 1
	}

	if status < 200 || status >= 300 {
		span.SetStatus(observability.StatusCodeError, "")
		return 1
	}
	span.SetStatus(observability.StatusCodeOK, "")
	return 0
}

// runProgram is the illustrative author program: validate, then notify.
// A real deployment replaces this with its own sequence of Call/ParallelCall
// invocations — the engine requires only that the sequence be the same
// shape on every replay of a given run (spec.md §3 invariant 5).
func runProgram(ctx context.Context, eng *workflow.Engine) error {
	if _, err := eng.Call(ctx, "validate", "validate_task"); err != nil {
		return err
	}
	if _, err := eng.Call(ctx, "notify", "notify_task"); err != nil {
		return err
	}
	return nil
}
