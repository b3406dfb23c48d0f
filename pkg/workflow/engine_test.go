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
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage is a minimal in-memory Storage double, kept local to this
// test file so pkg/workflow's tests don't import internal/storage/memory
// (which itself depends on pkg/workflow).
type fakeStorage struct {
	states    map[string]*State
	nextRunID map[string]int
	endpoints map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		states:    map[string]*State{},
		nextRunID: map[string]int{},
		endpoints: map[string]string{},
	}
}

func (s *fakeStorage) key(name string, runID int) string {
	return name + "#" + strconv.Itoa(runID)
}

func (s *fakeStorage) Read(ctx context.Context, name string, runID int) (*State, error) {
	st, ok := s.states[s.key(name, runID)]
	if !ok {
		return nil, nil
	}
	return st, nil
}

func (s *fakeStorage) Write(ctx context.Context, state *State) error {
	s.states[s.key(state.Name, state.RunID)] = state
	return nil
}

func (s *fakeStorage) IncrementID(ctx context.Context, name string) (int, error) {
	s.nextRunID[name]++
	return s.nextRunID[name], nil
}

func (s *fakeStorage) GetEndpoint(ctx context.Context, name string, component Component) (string, error) {
	return s.endpoints[string(component)+":"+name], nil
}

// fakeQueue records every message sent, keyed by endpoint.
type fakeQueue struct {
	sent map[string][]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{sent: map[string][]string{}}
}

func (q *fakeQueue) Send(ctx context.Context, endpoint, body string) error {
	q.sent[endpoint] = append(q.sent[endpoint], body)
	return nil
}

func newRunInput() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"workflow":  "onboarding",
		"ids":       []int{-1, -1, -1},
		"executed":  true,
		"completed": true,
		"success":   true,
		"cache":     map[string]interface{}{},
	})
	return body
}

func setup(t *testing.T) (*fakeStorage, *fakeQueue) {
	t.Helper()
	storage := newFakeStorage()
	storage.endpoints[string(ExecutorQueue)+":onboarding"] = "executor-endpoint"
	storage.endpoints[string(InvocationQueue)+":onboarding"] = "invocation-endpoint"
	return storage, newFakeQueue()
}

// Seed test 1: new run, single step.
func TestNewRunSingleStep(t *testing.T) {
	storage, queue := setup(t)
	eng := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))

	result, err := eng.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, DecisionExecute, result.Decision)

	status, err := eng.Done(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusInProcess, status)

	state, err := storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	require.Len(t, state.Steps, 1)
	assert.Equal(t, 0, state.Steps[0].ID())
	assert.Equal(t, "s1", state.Steps[0].Name())
	execd, completed, success := state.Steps[0].Outcome()
	assert.False(t, execd)
	assert.False(t, completed)
	assert.False(t, success)

	msgs := queue.sent["executor-endpoint"]
	require.Len(t, msgs, 1)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &msg))
	assert.Equal(t, "t1", msg["task_key"])
	assert.Equal(t, []interface{}{float64(1), float64(0), float64(-1)}, msg["ids"])
}

// Seed test 2: task success response closes the run.
func TestTaskSuccessResponseCompletesRun(t *testing.T) {
	storage, queue := setup(t)

	eng := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))
	_, err := eng.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	_, err = eng.Done(context.Background())
	require.NoError(t, err)

	respBody, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{1, 0, -1},
		"executed": true, "completed": true, "success": true,
		"cache": map[string]interface{}{},
	})

	eng2 := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng2.Init(context.Background(), respBody))
	result, err := eng2.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, result.Decision)

	status, err := eng2.Done(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	state, err := storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	execd, completed, success := state.Steps[0].Outcome()
	assert.True(t, execd)
	assert.True(t, completed)
	assert.True(t, success)
	assert.Empty(t, queue.sent["executor-endpoint"][1:])
}

// Seed test 3: two-step sequence enqueues s2 only after s1 succeeds.
func TestTwoStepSequence(t *testing.T) {
	storage, queue := setup(t)

	eng := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))
	_, err := eng.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	_, err = eng.Done(context.Background())
	require.NoError(t, err)

	respBody, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{1, 0, -1},
		"executed": true, "completed": true, "success": true,
		"cache": map[string]interface{}{},
	})

	eng2 := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng2.Init(context.Background(), respBody))
	r1, err := eng2.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, r1.Decision)

	r2, err := eng2.Call(context.Background(), "s2", "t2")
	require.NoError(t, err)
	assert.Equal(t, DecisionExecute, r2.Decision)

	_, err = eng2.Done(context.Background())
	require.NoError(t, err)

	state, err := storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	require.Len(t, state.Steps, 2)
	assert.Equal(t, StatusInProcess, state.Status)

	msgs := queue.sent["executor-endpoint"]
	require.Len(t, msgs, 2)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &msg))
	assert.Equal(t, "t2", msg["task_key"])
	assert.Equal(t, []interface{}{float64(1), float64(1), float64(-1)}, msg["ids"])
}

// Seed test 4: parallel fan-out/fan-in.
func TestParallelFanOutFanIn(t *testing.T) {
	storage, queue := setup(t)

	eng := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))
	result, err := eng.ParallelCall(context.Background(), "p", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, DecisionExecute, result.Decision)
	_, err = eng.Done(context.Background())
	require.NoError(t, err)

	msgs := queue.sent["executor-endpoint"]
	require.Len(t, msgs, 3)

	respond := func(taskID int, success bool) {
		body, _ := json.Marshal(map[string]interface{}{
			"workflow": "onboarding", "ids": []int{1, 0, taskID},
			"executed": true, "completed": true, "success": success,
			"cache": map[string]interface{}{},
		})
		e := NewEngine(storage, queue, "onboarding", 0, nil)
		require.NoError(t, e.Init(context.Background(), body))
		_, err := e.ParallelCall(context.Background(), "p", "a", "b", "c")
		require.NoError(t, err)
		_, err = e.Done(context.Background())
		require.NoError(t, err)
	}

	respond(0, true)
	respond(1, true)

	state, err := storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusInProcess, state.Status)
	_, _, groupSuccess := state.Steps[0].Outcome()
	assert.False(t, groupSuccess)

	respond(2, true)

	state, err = storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	_, _, groupSuccess = state.Steps[0].Outcome()
	assert.True(t, groupSuccess)
}

// Seed test 5: retry on failure exhausts after the budget.
func TestRetryOnFailure(t *testing.T) {
	storage, queue := setup(t)

	eng := NewEngine(storage, queue, "onboarding", 1, nil)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))
	_, err := eng.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	_, err = eng.Done(context.Background())
	require.NoError(t, err)

	failBody, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{1, 0, -1},
		"executed": true, "completed": true, "success": false,
		"cache": map[string]interface{}{},
	})

	eng2 := NewEngine(storage, queue, "onboarding", 1, nil)
	require.NoError(t, eng2.Init(context.Background(), failBody))
	r, err := eng2.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, DecisionExecute, r.Decision)
	_, err = eng2.Done(context.Background())
	require.NoError(t, err)

	state, err := storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusInProcess, state.Status)
	assert.Equal(t, 2, len(queue.sent["executor-endpoint"]))

	eng3 := NewEngine(storage, queue, "onboarding", 1, nil)
	require.NoError(t, eng3.Init(context.Background(), failBody))
	r3, err := eng3.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, DecisionWait, r3.Decision)
	_, err = eng3.Done(context.Background())
	require.NoError(t, err)

	state, err = storage.Read(context.Background(), "onboarding", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusOutOfRetries, state.Status)
	assert.Equal(t, 2, len(queue.sent["executor-endpoint"]))
}

// Seed test 6: cache propagation lets a guarded Call stay skipped.
func TestCachePropagation(t *testing.T) {
	storage, queue := setup(t)

	eng := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))
	_, err := eng.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	_, err = eng.Done(context.Background())
	require.NoError(t, err)

	respBody, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{1, 0, -1},
		"executed": true, "completed": true, "success": true,
		"cache": map[string]interface{}{"x": 1},
	})

	eng2 := NewEngine(storage, queue, "onboarding", 0, nil)
	require.NoError(t, eng2.Init(context.Background(), respBody))
	_, err = eng2.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)

	cache := eng2.GetCache()
	assert.Equal(t, float64(1), cache["x"])

	guarded, err := eng2.EvaluateGuard(`cache.x == 2`)
	require.NoError(t, err)
	assert.False(t, guarded)
}

func TestNewRunSentinelRequired(t *testing.T) {
	storage, queue := setup(t)
	eng := NewEngine(storage, queue, "onboarding", 0, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{-1, 0, 0},
		"executed": true, "completed": true, "success": true,
		"cache": map[string]interface{}{},
	})
	assert.Error(t, eng.Init(context.Background(), body))
}

// fakeMetrics is a minimal MetricsRecorder double that just counts calls, so
// tests can assert the engine reports the events it claims to without
// pulling in the OTel SDK.
type fakeMetrics struct {
	runStarts     int
	runCompletes  int
	stepsEnqueued int
	retries       int
	invocations   int
	queueSends    int
}

func (m *fakeMetrics) RecordRunStart(ctx context.Context, runID, workflow string) { m.runStarts++ }
func (m *fakeMetrics) RecordRunComplete(ctx context.Context, runID, workflow, status string, duration time.Duration) {
	m.runCompletes++
}
func (m *fakeMetrics) RecordStepEnqueued(ctx context.Context, workflow, stepName, taskKey string) {
	m.stepsEnqueued++
}
func (m *fakeMetrics) RecordRetry(ctx context.Context, workflow, stepName string, retriesRemaining int) {
	m.retries++
}
func (m *fakeMetrics) RecordInvocation(ctx context.Context, workflow, outcome string, duration time.Duration) {
	m.invocations++
}
func (m *fakeMetrics) RecordQueueSend(ctx context.Context, endpoint string, err error, duration time.Duration) {
	m.queueSends++
}

func TestMetricsRecordedAcrossRunRetryAndCompletion(t *testing.T) {
	storage, queue := setup(t)
	metrics := &fakeMetrics{}

	eng := NewEngine(storage, queue, "onboarding", 1, nil)
	eng.SetMetrics(metrics)
	require.NoError(t, eng.Init(context.Background(), newRunInput()))
	_, err := eng.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	_, err = eng.Done(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.runStarts)
	assert.Equal(t, 1, metrics.stepsEnqueued)
	assert.Equal(t, 1, metrics.queueSends)
	assert.Equal(t, 1, metrics.invocations)
	assert.Equal(t, 0, metrics.runCompletes, "run is still in process, waiting on the task")

	failBody, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{1, 0, -1},
		"executed": true, "completed": true, "success": false,
		"cache": map[string]interface{}{},
	})
	eng2 := NewEngine(storage, queue, "onboarding", 1, nil)
	eng2.SetMetrics(metrics)
	require.NoError(t, eng2.Init(context.Background(), failBody))
	result, err := eng2.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, DecisionExecute, result.Decision)
	_, err = eng2.Done(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.retries)
	assert.Equal(t, 2, metrics.stepsEnqueued)

	succeedBody, _ := json.Marshal(map[string]interface{}{
		"workflow": "onboarding", "ids": []int{1, 0, -1},
		"executed": true, "completed": true, "success": true,
		"cache": map[string]interface{}{},
	})
	eng3 := NewEngine(storage, queue, "onboarding", 1, nil)
	eng3.SetMetrics(metrics)
	require.NoError(t, eng3.Init(context.Background(), succeedBody))
	_, err = eng3.Call(context.Background(), "s1", "t1")
	require.NoError(t, err)
	status, err := eng3.Done(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	assert.Equal(t, 1, metrics.runCompletes)
}
