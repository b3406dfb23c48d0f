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

// Package memory implements pkg/workflow.Storage entirely in-process. It
// backs the Custom cloud selection for unit tests and local development
// where no real queue/database is worth standing up.
package memory

import (
	"context"
	"sync"

	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
)

type stateKey struct {
	name  string
	runID int
}

// Backend is an in-memory workflow.Storage guarded by a single mutex. It is
// safe for concurrent use but keeps no data beyond the process lifetime.
type Backend struct {
	mu        sync.RWMutex
	states    map[stateKey]*workflow.State
	nextRunID map[string]int
	endpoints map[string]string // "<component>:<name>" -> endpoint
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		states:    make(map[stateKey]*workflow.State),
		nextRunID: make(map[string]int),
		endpoints: make(map[string]string),
	}
}

// Read returns the stored State for (name, runID), or (nil, nil) if absent
// per the workflow.Storage contract.
func (b *Backend) Read(ctx context.Context, name string, runID int) (*workflow.State, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state, ok := b.states[stateKey{name, runID}]
	if !ok {
		return nil, nil
	}
	return state, nil
}

// Write persists state, keyed by (state.Name, state.RunID). It overwrites
// any prior value unconditionally — the engine's own exactly-once-write
// guarantee (pkg/workflow.Engine.persist) is what keeps this idempotent
// across a single invocation.
func (b *Backend) Write(ctx context.Context, state *workflow.State) error {
	if state == nil {
		return &errors.ContractError{Field: "state", Message: "cannot write a nil state"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[stateKey{state.Name, state.RunID}] = state
	return nil
}

// IncrementID allocates the next run_id for name, starting at 1 (an empty
// table's "max(run_id)+1" is 1, matching spec.md's seed-test numbering).
func (b *Backend) IncrementID(ctx context.Context, name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.nextRunID[name] + 1
	b.nextRunID[name] = next
	return next, nil
}

// RegisterEndpoint associates a queue/resource endpoint with (component,
// name) so GetEndpoint can resolve it. Tests and local CLI bootstrapping
// call this before triggering a run; it has no spec.md equivalent because
// real clouds resolve endpoints from their own resource registries. The
// signature matches the other backends' RegisterEndpoint so cmd/switchboard
// can register against any of them interchangeably.
func (b *Backend) RegisterEndpoint(ctx context.Context, component workflow.Component, name, endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[string(component)+":"+name] = endpoint
	return nil
}

// GetEndpoint resolves the endpoint registered for (name, component).
func (b *Backend) GetEndpoint(ctx context.Context, name string, component workflow.Component) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	endpoint, ok := b.endpoints[string(component)+":"+name]
	if !ok {
		return "", &errors.ConfigError{
			Key:    "endpoint:" + string(component) + ":" + name,
			Reason: "no endpoint registered for this component/name",
		}
	}
	return endpoint, nil
}

// Close is a no-op: a Backend holds no external connection to release.
func (b *Backend) Close() error {
	return nil
}
