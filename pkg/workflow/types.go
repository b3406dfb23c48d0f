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

// Package workflow implements the durable, step-based workflow engine:
// the Context/State data model, the replay/retry/aggregate algorithm, the
// Response builder, and the process-singleton public API.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Status is the terminal/non-terminal state of a run.
type Status string

const (
	// StatusInProcess means the run has outstanding steps.
	StatusInProcess Status = "InProcess"
	// StatusCompleted is terminal: the run reached Done() with nothing enqueued.
	StatusCompleted Status = "Completed"
	// StatusOutOfRetries is terminal: a step failed and its retries were exhausted.
	StatusOutOfRetries Status = "OutOfRetries"
)

// Component names a discoverable queue endpoint.
type Component string

const (
	// InvocationQueue re-enters the workflow handler.
	InvocationQueue Component = "InvocationQueue"
	// ExecutorQueue is consumed by the executor dispatcher.
	ExecutorQueue Component = "ExecutorQueue"
)

// noTaskID is the sentinel task_id for a non-parallel Step.
const noTaskID = -1

// Step is one ordered unit of work recorded in State.
type Step struct {
	StepIDValue  int    `json:"step_id"`
	StepNameValue string `json:"step_name"`
	TaskKey      string `json:"task_key"`
	ExecutedValue  bool `json:"executed"`
	CompletedValue bool `json:"completed"`
	SuccessValue   bool `json:"success"`
	TaskID       int    `json:"task_id"`
	Retries      int    `json:"retries"`
}

// NewStep constructs a fresh, unexecuted Step with the given retry budget.
func NewStep(stepID int, stepName, taskKey string, retries int) *Step {
	return &Step{
		StepIDValue:   stepID,
		StepNameValue: stepName,
		TaskKey:       taskKey,
		TaskID:        noTaskID,
		Retries:       retries,
	}
}

func (s *Step) ID() int       { return s.StepIDValue }
func (s *Step) Name() string  { return s.StepNameValue }
func (s *Step) IsParallel() bool { return false }

func (s *Step) Outcome() (executed, completed, success bool) {
	return s.ExecutedValue, s.CompletedValue, s.SuccessValue
}

// SetOutcome applies the monotone-transition guard (§3 invariant 3): a
// true flag already recorded can never be overwritten with false.
func (s *Step) SetOutcome(executed, completed, success bool) {
	s.ExecutedValue = s.ExecutedValue || executed
	s.CompletedValue = s.CompletedValue || completed
	s.SuccessValue = s.SuccessValue || success
}

// ParallelStep is a group of sibling Steps executed concurrently.
type ParallelStep struct {
	StepIDValue   int     `json:"step_id"`
	StepNameValue string  `json:"step_name"`
	Tasks         []*Step `json:"tasks"`
	ExecutedValue  bool `json:"executed"`
	CompletedValue bool `json:"completed"`
	SuccessValue   bool `json:"success"`
}

// NewParallelStep constructs a fresh ParallelStep with one Step per task_key,
// numbered 0..N-1 by task_id.
func NewParallelStep(stepID int, stepName string, taskKeys []string, retries int) *ParallelStep {
	tasks := make([]*Step, len(taskKeys))
	for i, key := range taskKeys {
		tasks[i] = &Step{
			StepIDValue:   stepID,
			StepNameValue: stepName,
			TaskKey:       key,
			TaskID:        i,
			Retries:       retries,
		}
	}
	return &ParallelStep{StepIDValue: stepID, StepNameValue: stepName, Tasks: tasks}
}

func (p *ParallelStep) ID() int        { return p.StepIDValue }
func (p *ParallelStep) Name() string   { return p.StepNameValue }
func (p *ParallelStep) IsParallel() bool { return true }

func (p *ParallelStep) Outcome() (executed, completed, success bool) {
	return p.ExecutedValue, p.CompletedValue, p.SuccessValue
}

func (p *ParallelStep) SetOutcome(executed, completed, success bool) {
	p.ExecutedValue = p.ExecutedValue || executed
	p.CompletedValue = p.CompletedValue || completed
	p.SuccessValue = p.SuccessValue || success
}

// Task returns the sibling task with the given task_id, or nil.
func (p *ParallelStep) Task(taskID int) *Step {
	for _, t := range p.Tasks {
		if t.TaskID == taskID {
			return t
		}
	}
	return nil
}

// Aggregate recomputes the group's outcome flags as the AND over its
// tasks' flags (§3 invariant 4) and returns the result.
func (p *ParallelStep) Aggregate() (executed, completed, success bool) {
	if len(p.Tasks) == 0 {
		return false, false, false
	}
	executed, completed, success = true, true, true
	for _, t := range p.Tasks {
		executed = executed && t.ExecutedValue
		completed = completed && t.CompletedValue
		success = success && t.SuccessValue
	}
	p.ExecutedValue, p.CompletedValue, p.SuccessValue = executed, completed, success
	return
}

// StepUnit is satisfied by both Step and ParallelStep so State.Steps can
// hold either in one ordered sequence (§3 "steps (ordered sequence of
// Step|ParallelStep)").
type StepUnit interface {
	ID() int
	Name() string
	IsParallel() bool
	Outcome() (executed, completed, success bool)
	SetOutcome(executed, completed, success bool)
}

// Resource is a discovery record for a named queue endpoint.
type Resource struct {
	Component    Component `json:"component"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Cloud        string    `json:"cloud"`
	Resource     string    `json:"resource"`
	ResourceType string    `json:"resource_type"`
}

// State is the persisted run record, keyed by (Name, RunID).
type State struct {
	Name   string
	RunID  int
	Steps  []StepUnit
	Cache  map[string]interface{}
	Status Status
}

// stepWire is the on-the-wire shape shared by Step and ParallelStep; the
// presence of "tasks" discriminates which one a given element is.
type stepWire struct {
	StepID    int             `json:"step_id"`
	StepName  string          `json:"step_name"`
	TaskKey   string          `json:"task_key,omitempty"`
	TaskID    *int            `json:"task_id,omitempty"`
	Retries   *int            `json:"retries,omitempty"`
	Tasks     []*Step         `json:"tasks,omitempty"`
	Executed  bool            `json:"executed"`
	Completed bool            `json:"completed"`
	Success   bool            `json:"success"`
}

type stateWire struct {
	Name   string                 `json:"name"`
	RunID  int                    `json:"run_id"`
	Steps  []stepWire             `json:"steps"`
	Cache  map[string]interface{} `json:"cache"`
	Status Status                 `json:"status"`
}

// MarshalJSON serializes State, flattening Step/ParallelStep into the
// shared wire shape.
func (s *State) MarshalJSON() ([]byte, error) {
	wire := stateWire{Name: s.Name, RunID: s.RunID, Cache: s.Cache, Status: s.Status}
	if wire.Cache == nil {
		wire.Cache = map[string]interface{}{}
	}
	for _, unit := range s.Steps {
		switch v := unit.(type) {
		case *Step:
			taskID := v.TaskID
			retries := v.Retries
			wire.Steps = append(wire.Steps, stepWire{
				StepID: v.StepIDValue, StepName: v.StepNameValue, TaskKey: v.TaskKey,
				TaskID: &taskID, Retries: &retries,
				Executed: v.ExecutedValue, Completed: v.CompletedValue, Success: v.SuccessValue,
			})
		case *ParallelStep:
			wire.Steps = append(wire.Steps, stepWire{
				StepID: v.StepIDValue, StepName: v.StepNameValue, Tasks: v.Tasks,
				Executed: v.ExecutedValue, Completed: v.CompletedValue, Success: v.SuccessValue,
			})
		default:
			return nil, fmt.Errorf("workflow: unknown step unit type %T", unit)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reconstructs State.Steps, recognizing a ParallelStep by
// the presence of a non-nil "tasks" array.
func (s *State) UnmarshalJSON(data []byte) error {
	var wire stateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Name = wire.Name
	s.RunID = wire.RunID
	s.Cache = wire.Cache
	if s.Cache == nil {
		s.Cache = map[string]interface{}{}
	}
	s.Status = wire.Status
	s.Steps = make([]StepUnit, 0, len(wire.Steps))
	for _, sw := range wire.Steps {
		if sw.Tasks != nil {
			s.Steps = append(s.Steps, &ParallelStep{
				StepIDValue: sw.StepID, StepNameValue: sw.StepName, Tasks: sw.Tasks,
				ExecutedValue: sw.Executed, CompletedValue: sw.Completed, SuccessValue: sw.Success,
			})
			continue
		}
		taskID := noTaskID
		if sw.TaskID != nil {
			taskID = *sw.TaskID
		}
		retries := 0
		if sw.Retries != nil {
			retries = *sw.Retries
		}
		s.Steps = append(s.Steps, &Step{
			StepIDValue: sw.StepID, StepNameValue: sw.StepName, TaskKey: sw.TaskKey,
			TaskID: taskID, Retries: retries,
			ExecutedValue: sw.Executed, CompletedValue: sw.Completed, SuccessValue: sw.Success,
		})
	}
	return nil
}

// Context is the per-invocation envelope exchanged over the invocation and
// executor queues.
type Context struct {
	Workflow  string                 `json:"workflow,omitempty"`
	IDs       [3]int                 `json:"ids"`
	Executed  bool                   `json:"executed"`
	Completed bool                   `json:"completed"`
	Success   bool                   `json:"success"`
	Cache     map[string]interface{} `json:"cache"`

	// TaskKey is only present on executor-bound messages; it is removed
	// before a Context is re-serialized for a task (§3, §4.6).
	TaskKey string `json:"task_key,omitempty"`
}

// newRunSentinel is the only legal ids value for requesting a new run (§4.3).
var newRunSentinel = [3]int{-1, -1, -1}

// IsNewRun reports whether ids equals the sentinel [-1,-1,-1].
func (c *Context) IsNewRun() bool {
	return c.IDs == newRunSentinel
}

func (c *Context) RunID() int  { return c.IDs[0] }
func (c *Context) StepID() int { return c.IDs[1] }
func (c *Context) TaskID() int { return c.IDs[2] }
