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
	"encoding/json"

	"github.com/tombee/switchboard/pkg/errors"
)

// contextWire is the raw shape a Context is parsed from and serialized to.
// Unlike the Python reference, a parse failure is never treated as "this
// must be a new run" (spec.md §4.3, §9): missing required fields are a
// ContractError, and the sentinel ids=[-1,-1,-1] is the only legal way to
// request a new run.
type contextWire struct {
	Workflow  string                 `json:"workflow,omitempty"`
	IDs       []int                  `json:"ids"`
	Executed  *bool                  `json:"executed"`
	Completed *bool                  `json:"completed"`
	Success   *bool                  `json:"success"`
	Cache     map[string]interface{} `json:"cache"`
	TaskKey   string                 `json:"task_key,omitempty"`
}

// ParseContext decodes a raw invocation- or executor-queue message body into
// a Context, enforcing the §4.3 field contract: ids present and of length
// three, executed/completed/success present, cache present (may be empty).
func ParseContext(body []byte) (*Context, error) {
	var wire contextWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &errors.ContractError{Field: "context", Message: "malformed JSON: " + err.Error()}
	}

	if len(wire.IDs) != 3 {
		return nil, &errors.ContractError{
			Field:   "ids",
			Message: "ids must be present and contain exactly three integers [run_id, step_id, task_id]",
		}
	}
	if wire.Executed == nil || wire.Completed == nil || wire.Success == nil {
		return nil, &errors.ContractError{
			Field:   "executed/completed/success",
			Message: "executed, completed, and success must all be present",
		}
	}

	cache := wire.Cache
	if cache == nil {
		cache = map[string]interface{}{}
	}

	ctx := &Context{
		Workflow:  wire.Workflow,
		Executed:  *wire.Executed,
		Completed: *wire.Completed,
		Success:   *wire.Success,
		Cache:     cache,
		TaskKey:   wire.TaskKey,
	}
	copy(ctx.IDs[:], wire.IDs)

	if ctx.IDs != newRunSentinel {
		if ctx.IDs[0] == -1 {
			return nil, &errors.ContractError{
				Field:   "ids",
				Message: "run_id=-1 is only legal as part of the full new-run sentinel [-1,-1,-1]",
			}
		}
	}

	return ctx, nil
}

// ToJSON re-emits the invocation-queue message shape (§6.1): workflow,
// ids, executed, completed, success, cache. task_key is included only when
// non-empty, which is how an executor-queue message (§6.2) differs.
func (c *Context) ToJSON() ([]byte, error) {
	cache := c.Cache
	if cache == nil {
		cache = map[string]interface{}{}
	}
	wire := contextWire{
		Workflow:  c.Workflow,
		IDs:       c.IDs[:],
		Executed:  &c.Executed,
		Completed: &c.Completed,
		Success:   &c.Success,
		Cache:     cache,
		TaskKey:   c.TaskKey,
	}
	return json.Marshal(wire)
}

// WithoutTaskKey returns a copy of c with TaskKey cleared, as required
// before a Context is re-serialized for a task (§3, §4.6 step 2).
func (c *Context) WithoutTaskKey() *Context {
	cp := *c
	cp.TaskKey = ""
	return &cp
}

// Clone returns a deep-enough copy of c suitable for independent mutation
// (the cache map is copied; scalar fields are copied by value).
func (c *Context) Clone() *Context {
	cp := *c
	cp.Cache = make(map[string]interface{}, len(c.Cache))
	for k, v := range c.Cache {
		cp.Cache[k] = v
	}
	return &cp
}

// NewTriggerContext builds the sentinel "start a new run" Context (§4.4):
// ids=[-1,-1,-1], all outcome flags true, empty cache.
func NewTriggerContext(workflowName string) *Context {
	return &Context{
		Workflow:  workflowName,
		IDs:       newRunSentinel,
		Executed:  true,
		Completed: true,
		Success:   true,
		Cache:     map[string]interface{}{},
	}
}
