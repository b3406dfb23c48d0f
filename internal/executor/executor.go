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

// Package executor implements the Executor Dispatcher (C6): it looks up a
// task by task_key in a user-provided map, runs it, and emits a Response
// back to the invocation queue both before and after the task body runs.
package executor

import (
	"context"
	"log/slog"

	internallog "github.com/tombee/switchboard/internal/log"
	swerrors "github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
)

// Task is a user-defined function resolved by task_key. It receives the
// Context (task_key already stripped) and reports a status code plus any
// cache updates it wants folded into its own terminal Response.
type Task func(ctx context.Context, wfCtx *workflow.Context) (statusCode int, cacheUpdates map[string]interface{}, err error)

// TaskMap resolves task_key to a Task implementation.
type TaskMap map[string]Task

// Dispatcher runs one executor-queue message through a TaskMap (C6).
type Dispatcher struct {
	storage workflow.Storage
	queue   workflow.Queue
	tasks   TaskMap
	logger  *slog.Logger
}

// New constructs a Dispatcher. storage/queue are used to build the
// Response sent back to the invocation queue before and after the task
// runs; tasks is the process's task_key -> Task registry.
func New(storage workflow.Storage, queue workflow.Queue, tasks TaskMap, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{storage: storage, queue: queue, tasks: tasks, logger: internallog.WithComponent(logger, "executor")}
}

// statusNotFound, statusTaskError, statusOK are the handler status codes
// (§6.4, §9 open question 3): 200 ok, 400 task error, 404 unknown task_key.
const (
	statusOK        = 200
	statusTaskError = 400
	statusNotFound  = 404
)

// Dispatch implements the C6 algorithm:
//  1. extract task_key; 404 if unknown,
//  2. strip task_key from the context and mark executed=true,
//  3. emit a Response before running the task,
//  4. invoke the task, then emit the terminal Response (completed=true,
//     success from the task's status code) carrying the task's cache updates,
//  5. return the task's status code.
func (d *Dispatcher) Dispatch(ctx context.Context, rawContext []byte) int {
	wfCtx, err := workflow.ParseContext(rawContext)
	if err != nil {
		d.logger.Error("malformed executor message", internallog.Error(err))
		return statusTaskError
	}

	taskKey := wfCtx.TaskKey
	task, ok := d.tasks[taskKey]
	if !ok {
		d.logger.Warn("unknown task_key", internallog.String("task_key", taskKey))
		return statusNotFound
	}

	logger := internallog.WithTask(d.logger, taskKey)
	stripped := wfCtx.WithoutTaskKey()
	stripped.Executed = true

	startResp := workflow.NewResponse(d.storage, d.queue, wfCtx.Workflow, stripped)
	if err := startResp.Send(ctx, stripped.Cache); err != nil {
		logger.Error("failed to send start response", internallog.Error(err))
		return statusTaskError
	}

	statusCode, cacheUpdates, taskErr := task(ctx, stripped)
	if taskErr != nil {
		logger.Error("task returned error", internallog.Error(&swerrors.TaskError{TaskKey: taskKey, Cause: taskErr, Message: taskErr.Error()}))
		if statusCode == 0 {
			statusCode = statusTaskError
		}
	}
	if statusCode == 0 {
		statusCode = statusOK
	}

	completed := stripped.Clone()
	completed.Completed = true
	completed.Success = statusCode >= 200 && statusCode < 300
	finishResp := workflow.NewResponse(d.storage, d.queue, wfCtx.Workflow, completed)
	if err := finishResp.Send(ctx, cacheUpdates); err != nil {
		logger.Error("failed to send completion response", internallog.Error(err))
		return statusTaskError
	}

	return statusCode
}
