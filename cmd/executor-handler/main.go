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

// Command executor-handler is the serverless entrypoint a deployment wires
// to the executor queue (§6.4): it reads one executor-queue message, looks
// up task_key in a task map, runs the task, and exits 0 when the resulting
// status code is 2xx and 1 otherwise. The task bodies are out of scope for this repository
// (spec.md §1); the two tasks registered below exist only to prove the
// Dispatcher wiring end to end, mirroring the teacher's sample_task
// convention for its own template packages.
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
	"github.com/tombee/switchboard/internal/executor"
	"github.com/tombee/switchboard/internal/handler"
	"github.com/tombee/switchboard/pkg/observability"
	"github.com/tombee/switchboard/pkg/workflow"
)

// buildVersion tags the traces this process emits; override at link time
// with -ldflags "-X main.buildVersion=...".
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
		logger.Error("failed to read executor message from stdin", internallog.Error(err))
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
		ServiceName:    "executor-handler",
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
	logger = internallog.WithComponent(logger, "executor-handler")

	tracer := provider.Tracer("switchboard.executor-handler")
	ctx, span := tracer.Start(ctx, "executor-handler.dispatch")
	defer span.End()
	span.SetAttributes(map[string]any{"correlation_id": corrID.String()})

	middleware := internallog.NewHandlerMiddleware(logger)
	req := &internallog.InvocationRequest{
		Handler:       "executor",
		CorrelationID: corrID.String(),
	}

	dispatcher := executor.New(backends.Storage, backends.Queue, sampleTasks, logger)
	status, _ := middleware.Wrap(req, func() (int, error) {
		return dispatcher.Dispatch(ctx, rawContext), nil
	})

	if status < 200 || status >= 300 {
		span.SetStatus(observability.StatusCodeError, "")
		return 1
	}
	span.SetStatus(observability.StatusCodeOK, "")
	return 0
}

// sampleTasks is the illustrative task_key -> Task registry. A real
// deployment builds its own TaskMap from its task bodies and passes it to
// executor.New in place of this one.
var sampleTasks = executor.TaskMap{
	"validate_task": func(ctx context.Context, wfCtx *workflow.Context) (int, map[string]interface{}, error) {
		return 200, map[string]interface{}{"validated": true}, nil
	},
	"notify_task": func(ctx context.Context, wfCtx *workflow.Context) (int, map[string]interface{}, error) {
		return 200, map[string]interface{}{"notified": true}, nil
	},
}
