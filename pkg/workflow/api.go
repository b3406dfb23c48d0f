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

package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tombee/switchboard/pkg/errors"
)

// singleton is the process-wide handle (C7). The Python reference expresses
// this as a module-level global guarded by a class `__new__`/`_initialized`
// pattern; here it is explicit process state behind Init/Reset, matching
// DESIGN NOTES' "ambient handle protected by a one-time guard" (one handler
// process executes one invocation before terminating, so this never needs
// to arbitrate between concurrent invocations in the same process).
var (
	singletonMu    sync.Mutex
	singleton      *Engine
	customExecutor Queue
)

// SetCustomExecutorQueue overrides the executor-queue sender for this
// process (C7 `SetCustomExecutorQueue`), taking precedence over whatever
// Queue was passed to Init. Used for tests and bring-your-own transports.
func SetCustomExecutorQueue(q Queue) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	customExecutor = q
}

// Init constructs the process's Workflow instance (C7 `Init`).
// Re-initialization while a workflow is already active is rejected; the
// caller must call Done and Reset before starting another invocation in the
// same process.
func Init(ctx context.Context, storage Storage, queue Queue, name string, defaultRetries int, rawContext []byte, logger *slog.Logger) (*Engine, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil {
		return nil, &errors.ConfigError{
			Key:    "workflow",
			Reason: "a workflow is already active in this process; call Done and Reset first",
		}
	}

	if customExecutor != nil {
		queue = customExecutor
	}

	eng := NewEngine(storage, queue, name, defaultRetries, logger)
	if err := eng.Init(ctx, rawContext); err != nil {
		return nil, err
	}
	singleton = eng
	return eng, nil
}

// Active returns the process's current Engine, or an error if no workflow
// is active ("Attempted to interact with the WORKFLOW without it being
// active" in the Python reference, typed here as a ConfigError).
func Active() (*Engine, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		return nil, &errors.ConfigError{Key: "workflow", Reason: "no active workflow; call Init first"}
	}
	return singleton, nil
}

// Call dispatches a step on the process's active workflow (C7 `Call`).
func Call(ctx context.Context, stepName, taskKey string) (*CallResult, error) {
	eng, err := Active()
	if err != nil {
		return nil, err
	}
	return eng.Call(ctx, stepName, taskKey)
}

// ParallelCall dispatches a group of sibling tasks on the process's active
// workflow (C7 `ParallelCall`).
func ParallelCall(ctx context.Context, stepName string, taskKeys ...string) (*CallResult, error) {
	eng, err := Active()
	if err != nil {
		return nil, err
	}
	return eng.ParallelCall(ctx, stepName, taskKeys...)
}

// GetCache returns the active workflow's current cache (C7 `GetCache`).
func GetCache() (map[string]interface{}, error) {
	eng, err := Active()
	if err != nil {
		return nil, err
	}
	return eng.GetCache(), nil
}

// Done finalizes the active workflow (C7 `Done`) and returns its terminal
// HTTP-style status code (§6.4): 200 on success.
func Done(ctx context.Context) (int, error) {
	eng, err := Active()
	if err != nil {
		return 0, err
	}
	if _, err := eng.Done(ctx); err != nil {
		return 0, err
	}
	return 200, nil
}

// Reset clears the process-wide handle so the next cold-start invocation
// can call Init again. Handler entrypoints call this on every exit path,
// mirroring the "explicit reset after Done" rule in spec.md §4.5.
func Reset() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = nil
}
