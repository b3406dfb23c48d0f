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

import "context"

// Storage persists State and resolves the queue endpoints a workflow
// reads and writes through. It lives here, rather than in an internal
// storage package, so that concrete backends (internal/storage/*) can
// import this package and implement the interface without pkg/workflow
// importing them back.
type Storage interface {
	// Read loads the State for (name, runID). It returns a nil *State and
	// a nil error if no such run exists yet.
	Read(ctx context.Context, name string, runID int) (*State, error)

	// Write persists state, overwriting any prior record for the same
	// (Name, RunID). A workflow invocation performs exactly one Write.
	Write(ctx context.Context, state *State) error

	// IncrementID atomically allocates the next run_id for name,
	// starting at 1 for a workflow's first run.
	IncrementID(ctx context.Context, name string) (int, error)

	// GetEndpoint resolves the queue endpoint registered for
	// (name, component), as recorded by a prior resource registration.
	GetEndpoint(ctx context.Context, name string, component Component) (string, error)
}
