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
	"strconv"
	"time"

	swerrors "github.com/tombee/switchboard/pkg/errors"
	internallog "github.com/tombee/switchboard/internal/log"
)

// MetricsRecorder is the subset of internal/tracing's MetricsCollector the
// engine needs. Accepting it as an interface keeps this package independent
// of the OpenTelemetry wiring; a handler built against a different exporter
// can satisfy it without this package knowing about tracing at all.
type MetricsRecorder interface {
	RecordRunStart(ctx context.Context, runID, workflow string)
	RecordRunComplete(ctx context.Context, runID, workflow, status string, duration time.Duration)
	RecordStepEnqueued(ctx context.Context, workflow, stepName, taskKey string)
	RecordRetry(ctx context.Context, workflow, stepName string, retriesRemaining int)
	RecordInvocation(ctx context.Context, workflow, outcome string, duration time.Duration)
	RecordQueueSend(ctx context.Context, endpoint string, err error, duration time.Duration)
}

// Decision is the outcome of one Call/ParallelCall dispatch this invocation
// (§4.5 "User-call dispatch").
type Decision string

const (
	// DecisionFastSkip means this step is in the past; nothing changed.
	DecisionFastSkip Decision = "fast-skip"
	// DecisionSkip means the current step already succeeded; the replay
	// continues to the next Call in the same invocation.
	DecisionSkip Decision = "skip"
	// DecisionExecute means a message was enqueued (new step or retry).
	DecisionExecute Decision = "execute"
	// DecisionWait means the engine is still waiting on the in-flight step,
	// or the step has run out of retries; further calls this invocation are
	// no-ops.
	DecisionWait Decision = "wait"
	// DecisionNoop means a terminal decision already happened this
	// invocation and this call did nothing.
	DecisionNoop Decision = "noop"
)

// CallResult reports what a Call/ParallelCall dispatch decided.
type CallResult struct {
	Decision Decision
	Status   Status
}

// Engine implements the replay/resume algorithm (C5): it re-derives
// progress from persisted State on each invocation, gates step addition and
// skipping so re-invocation is idempotent, accounts retries, and folds
// per-task completion events into a single ParallelStep status.
type Engine struct {
	name           string
	storage        Storage
	queue          Queue
	defaultRetries int
	logger         *slog.Logger
	metrics        MetricsRecorder

	invocationStarted time.Time

	ctx   *Context
	state *State

	stepIdx  int
	currStep StepUnit
	stepCnt  int

	decided  bool
	written  bool
	enqueued bool
}

// NewEngine constructs an Engine for workflow name, backed by storage for
// State/Resource persistence and queue for dispatching executor messages.
// defaultRetries seeds Step.Retries for newly added steps (spec.md §9 open
// question: "leave as a config field ... documented default 0").
func NewEngine(storage Storage, queue Queue, name string, defaultRetries int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		name:           name,
		storage:        storage,
		queue:          queue,
		defaultRetries: defaultRetries,
		logger:         internallog.WithComponent(logger, "workflow.engine"),
	}
}

// SetMetrics attaches a MetricsRecorder for this invocation. Unset by
// default, so the zero-value Engine used by tests never dereferences a nil
// collector.
func (e *Engine) SetMetrics(metrics MetricsRecorder) {
	e.metrics = metrics
}

// Init ingests the Context and loads/allocates State (§4.5 steps 1-6).
func (e *Engine) Init(ctx context.Context, rawContext []byte) error {
	e.invocationStarted = time.Now()

	parsed, err := ParseContext(rawContext)
	if err != nil {
		return err
	}
	e.ctx = parsed

	logger := internallog.WithRunContext(e.logger, e.name, parsed.RunID())

	if parsed.IsNewRun() {
		runID, err := e.storage.IncrementID(ctx, e.name)
		if err != nil {
			return &swerrors.TransportError{Operation: "storage.increment_id", Cause: err}
		}
		e.state = &State{Name: e.name, RunID: runID, Steps: nil, Cache: map[string]interface{}{}, Status: StatusInProcess}
		e.ctx.IDs[0] = runID
		e.stepIdx = -1
		e.currStep = nil
		logger.Debug("allocated new run", internallog.Int("run_id", runID))
		if e.metrics != nil {
			e.metrics.RecordRunStart(ctx, strconv.Itoa(runID), e.name)
		}
		return nil
	}

	state, err := e.storage.Read(ctx, e.name, parsed.RunID())
	if err != nil {
		return &swerrors.TransportError{Operation: "storage.read", Cause: err}
	}
	if state == nil || len(state.Steps) == 0 {
		return &swerrors.ContractError{
			Field:   "run_id",
			Message: "no existing run with a non-empty step history for this run_id",
		}
	}
	e.state = state

	// Cache overlay: overwrite allowed, logged (§4.5 step 3, §9 open question 2).
	for k, v := range e.ctx.Cache {
		if old, existed := e.state.Cache[k]; existed {
			logger.Debug("cache overwrite", internallog.String("key", k), slog.Any("old", old), slog.Any("new", v))
		}
		e.state.Cache[k] = v
	}

	e.stepIdx = len(e.state.Steps) - 1
	e.currStep = e.state.Steps[e.stepIdx]

	if e.currStep.ID() != e.ctx.StepID() {
		return &swerrors.ContractError{
			Field:   "step_id",
			Message: "incoming context step_id does not match the current step in State",
		}
	}

	// Impossible-context guard (§4.5 step 5): a true flag in State with a
	// false flag incoming is a stale/duplicate message; skip mutation.
	execCurr, compCurr, succCurr := e.currStep.Outcome()
	if (execCurr && !e.ctx.Executed) || (compCurr && !e.ctx.Completed) || (succCurr && !e.ctx.Success) {
		logger.Debug("impossible context regression treated as stale duplicate")
		return nil
	}

	// Outcome folding (§4.5 step 6).
	if e.ctx.TaskID() >= 0 {
		ps, ok := e.currStep.(*ParallelStep)
		if !ok {
			return &swerrors.ContractError{Field: "ids", Message: "task_id >= 0 but current step is not a ParallelStep"}
		}
		task := ps.Task(e.ctx.TaskID())
		if task == nil {
			return &swerrors.ContractError{Field: "ids", Message: "no task with the given task_id in the current ParallelStep"}
		}
		task.SetOutcome(e.ctx.Executed, e.ctx.Completed, e.ctx.Success)
		executed, completed, success := ps.Aggregate()
		e.ctx.Executed, e.ctx.Completed, e.ctx.Success = executed, completed, success
	} else {
		e.currStep.SetOutcome(e.ctx.Executed, e.ctx.Completed, e.ctx.Success)
		executed, completed, success := e.currStep.Outcome()
		e.ctx.Executed, e.ctx.Completed, e.ctx.Success = executed, completed, success
	}

	return nil
}

// GetCache returns a read-through view of the current State's cache.
func (e *Engine) GetCache() map[string]interface{} {
	if e.state == nil {
		return nil
	}
	return e.state.Cache
}

// Status returns the current run status.
func (e *Engine) Status() Status {
	if e.state == nil {
		return StatusInProcess
	}
	return e.state.Status
}

// Call dispatches one ordered step (§4.5 "User-call dispatch").
func (e *Engine) Call(ctx context.Context, stepName, taskKey string) (*CallResult, error) {
	return e.dispatch(ctx, false, stepName, []string{taskKey})
}

// ParallelCall dispatches a group of sibling tasks executed concurrently.
func (e *Engine) ParallelCall(ctx context.Context, stepName string, taskKeys ...string) (*CallResult, error) {
	return e.dispatch(ctx, true, stepName, taskKeys)
}

func (e *Engine) dispatch(ctx context.Context, isParallel bool, stepName string, taskKeys []string) (*CallResult, error) {
	logger := internallog.WithStepContext(e.logger, e.stepIdx, stepName)

	if e.decided {
		return &CallResult{Decision: DecisionNoop, Status: e.Status()}, nil
	}

	if e.stepCnt < e.stepIdx {
		e.stepCnt++
		return &CallResult{Decision: DecisionFastSkip, Status: e.Status()}, nil
	}

	// Engine is waiting on the in-flight step (§4.5: "completed is false on
	// the current context").
	if !e.ctx.Completed {
		e.decided = true
		if err := e.persist(ctx); err != nil {
			return nil, err
		}
		return &CallResult{Decision: DecisionWait, Status: e.Status()}, nil
	}

	if e.currStep != nil && e.currStep.Name() == stepName {
		executed, completed, success := e.currStep.Outcome()
		if executed && completed && !success {
			// Needs-retry check (§4.5 "Retry policy").
			execute, err := e.applyRetry(ctx, logger)
			if err != nil {
				return nil, err
			}
			if execute {
				if err := e.enqueueRetry(ctx, isParallel); err != nil {
					return nil, err
				}
				e.decided = true
				e.enqueued = true
				if err := e.persist(ctx); err != nil {
					return nil, err
				}
				return &CallResult{Decision: DecisionExecute, Status: e.Status()}, nil
			}
			// Out of retries: terminal, no further enqueue.
			e.decided = true
			if err := e.persist(ctx); err != nil {
				return nil, err
			}
			return &CallResult{Decision: DecisionWait, Status: e.Status()}, nil
		}

		// executed && completed && success: this step is done. Continue the
		// replay to the next Call in the same invocation.
		e.stepCnt++
		return &CallResult{Decision: DecisionSkip, Status: e.Status()}, nil
	}

	// No matching current step: append and enqueue (§4.5 "Else (no such
	// step yet)").
	newStepID := e.ctx.StepID() + 1
	if isParallel {
		ps := NewParallelStep(newStepID, stepName, taskKeys, e.defaultRetries)
		e.state.Steps = append(e.state.Steps, ps)
		e.currStep = ps
	} else {
		s := NewStep(newStepID, stepName, taskKeys[0], e.defaultRetries)
		e.state.Steps = append(e.state.Steps, s)
		e.currStep = s
	}
	e.stepIdx = newStepID
	e.ctx.IDs = [3]int{e.ctx.RunID(), newStepID, -1}
	e.ctx.Executed, e.ctx.Completed, e.ctx.Success = false, false, false

	if err := e.enqueueNew(ctx, isParallel, stepName, taskKeys); err != nil {
		return nil, err
	}
	e.decided = true
	e.enqueued = true
	if err := e.persist(ctx); err != nil {
		return nil, err
	}
	logger.Debug("enqueued new step", internallog.String("step_name", stepName), internallog.Int("step_id", newStepID))
	return &CallResult{Decision: DecisionExecute, Status: e.Status()}, nil
}

// applyRetry decrements the failed step's/tasks' retry budget and reports
// whether execution should be attempted again.
func (e *Engine) applyRetry(ctx context.Context, logger *slog.Logger) (bool, error) {
	switch v := e.currStep.(type) {
	case *Step:
		v.Retries--
		if v.Retries >= 0 {
			logger.Debug("retrying step", internallog.Int("retries", v.Retries))
			if e.metrics != nil {
				e.metrics.RecordRetry(ctx, e.name, v.Name(), v.Retries)
			}
			return true, nil
		}
		e.state.Status = StatusOutOfRetries
		return false, nil
	case *ParallelStep:
		anyExhausted := false
		anyRetried := false
		for _, t := range v.Tasks {
			if t.ExecutedValue && t.CompletedValue && !t.SuccessValue {
				t.Retries--
				if t.Retries >= 0 {
					anyRetried = true
					if e.metrics != nil {
						e.metrics.RecordRetry(ctx, e.name, v.Name(), t.Retries)
					}
				} else {
					anyExhausted = true
				}
			}
		}
		if anyExhausted {
			e.state.Status = StatusOutOfRetries
			return false, nil
		}
		return anyRetried, nil
	default:
		return false, &swerrors.ContractError{Field: "step", Message: "unknown step unit type"}
	}
}

// enqueueRetry re-dispatches the current step's (or the failed tasks')
// task_key(s) with a fresh [run_id, step_id, task_id] and all flags false.
func (e *Engine) enqueueRetry(ctx context.Context, isParallel bool) error {
	switch v := e.currStep.(type) {
	case *Step:
		out := e.ctx.Clone()
		out.IDs = [3]int{e.ctx.RunID(), v.StepIDValue, -1}
		out.Executed, out.Completed, out.Success = false, false, false
		return e.sendExecutorMessage(ctx, v.TaskKey, out)
	case *ParallelStep:
		for _, t := range v.Tasks {
			if t.ExecutedValue && t.CompletedValue && !t.SuccessValue {
				out := e.ctx.Clone()
				out.IDs = [3]int{e.ctx.RunID(), v.StepIDValue, t.TaskID}
				out.Executed, out.Completed, out.Success = false, false, false
				if err := e.sendExecutorMessage(ctx, t.TaskKey, out); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return &swerrors.ContractError{Field: "step", Message: "unknown step unit type"}
	}
}

// enqueueNew dispatches the freshly-appended step: one message for a plain
// Call, one message per task for a ParallelCall.
func (e *Engine) enqueueNew(ctx context.Context, isParallel bool, stepName string, taskKeys []string) error {
	if !isParallel {
		out := e.ctx.Clone()
		return e.sendExecutorMessage(ctx, taskKeys[0], out)
	}
	ps := e.currStep.(*ParallelStep)
	for _, t := range ps.Tasks {
		out := e.ctx.Clone()
		out.IDs = [3]int{e.ctx.RunID(), ps.StepIDValue, t.TaskID}
		if err := e.sendExecutorMessage(ctx, t.TaskKey, out); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sendExecutorMessage(ctx context.Context, taskKey string, out *Context) error {
	endpoint, err := e.storage.GetEndpoint(ctx, e.name, ExecutorQueue)
	if err != nil {
		return &swerrors.ConfigError{
			Key:    "endpoint:" + string(ExecutorQueue) + ":" + e.name,
			Reason: "executor queue endpoint not registered",
			Cause:  err,
		}
	}
	body, err := marshalEnqueueBody(e.name, taskKey, out)
	if err != nil {
		return &swerrors.ContractError{Field: "context", Message: "failed to serialize executor message: " + err.Error()}
	}

	sendStart := time.Now()
	sendErr := e.queue.Send(ctx, endpoint, string(body))
	if e.metrics != nil {
		e.metrics.RecordQueueSend(ctx, endpoint, sendErr, time.Since(sendStart))
		stepName := ""
		if e.currStep != nil {
			stepName = e.currStep.Name()
		}
		if sendErr == nil {
			e.metrics.RecordStepEnqueued(ctx, e.name, stepName, taskKey)
		}
	}
	if sendErr != nil {
		return &swerrors.TransportError{Operation: "queue.send", Endpoint: endpoint, Cause: sendErr}
	}
	return nil
}

// Done finalizes the invocation (§4.5 "Done()"). If a terminal decision
// already happened this replay, it is a no-op. Otherwise, if the run is
// still InProcess and nothing was enqueued, the run completes.
func (e *Engine) Done(ctx context.Context) (Status, error) {
	if e.decided {
		return e.Status(), nil
	}
	e.decided = true
	if e.state.Status == StatusInProcess && !e.enqueued {
		e.state.Status = StatusCompleted
	}
	if err := e.persist(ctx); err != nil {
		return e.Status(), err
	}

	status := e.Status()
	if e.metrics != nil {
		elapsed := time.Since(e.invocationStarted)
		e.metrics.RecordInvocation(ctx, e.name, string(status), elapsed)
		if status == StatusCompleted || status == StatusOutOfRetries {
			e.metrics.RecordRunComplete(ctx, strconv.Itoa(e.state.RunID), e.name, string(status), elapsed)
		}
	}
	return status, nil
}

// persist performs the single write(state) per invocation (§4.5 "State
// persistence"), no matter which exit path reaches it first.
func (e *Engine) persist(ctx context.Context) error {
	if e.written {
		return nil
	}
	if err := e.storage.Write(ctx, e.state); err != nil {
		return &swerrors.TransportError{Operation: "storage.write", Cause: err}
	}
	e.written = true
	return nil
}
