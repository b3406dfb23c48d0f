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

	"github.com/tombee/switchboard/pkg/errors"
)

// Response emits a status message from a task, or from the engine itself,
// back to the invocation queue (C4). Tasks use it to report executed/
// completed/success outcomes; Trigger (below) uses it to start new runs.
type Response struct {
	storage Storage
	queue   Queue
	name    string
	ctx     *Context
}

// NewResponse prepares a Response ready to send ctx for name. queue must
// not be nil; Send resolves the invocation-queue endpoint through storage
// via GetEndpoint(name, InvocationQueue).
func NewResponse(storage Storage, queue Queue, name string, ctx *Context) *Response {
	return &Response{storage: storage, queue: queue, name: name, ctx: ctx}
}

// AddBody merges addedCache under the context's cache field and returns the
// JSON body that Send will deliver. This mirrors the Python reference's
// `context.to_dict() | {"cache": added_context}` merge (SPEC_FULL.md
// SUPPLEMENTED FEATURES #5): task-supplied cache additions replace the
// cache key, not the whole context.
func (r *Response) AddBody(addedCache map[string]interface{}) ([]byte, error) {
	merged := r.ctx.Clone()
	if addedCache != nil {
		merged.Cache = addedCache
	} else {
		merged.Cache = map[string]interface{}{}
	}
	return merged.ToJSON()
}

// Send resolves the invocation-queue endpoint and delivers the response
// body built from AddBody. Steps 1-3 of §4.4: resolve endpoint, build body,
// call send.
func (r *Response) Send(ctx context.Context, addedCache map[string]interface{}) error {
	endpoint, err := r.storage.GetEndpoint(ctx, r.name, InvocationQueue)
	if err != nil {
		return &errors.ConfigError{
			Key:    "endpoint:" + string(InvocationQueue) + ":" + r.name,
			Reason: "invocation queue endpoint not registered",
			Cause:  err,
		}
	}

	body, err := r.AddBody(addedCache)
	if err != nil {
		return &errors.ContractError{Field: "context", Message: "failed to serialize response body: " + err.Error()}
	}

	if err := r.queue.Send(ctx, endpoint, string(body)); err != nil {
		return &errors.TransportError{Operation: "queue.send", Endpoint: endpoint, Cause: err}
	}
	return nil
}

// Trigger sends the sentinel "new run" message to the invocation queue
// (§4.4, §4.7). It is a thin preconfiguration of Response with
// ids=[-1,-1,-1] and all outcome booleans true.
func Trigger(ctx context.Context, storage Storage, queue Queue, name string) error {
	resp := NewResponse(storage, queue, name, NewTriggerContext(name))
	return resp.Send(ctx, nil)
}

// marshalEnqueueBody builds the executor-queue message body (§6.2): the
// invocation-queue shape plus the required task_key field.
func marshalEnqueueBody(workflow, taskKey string, ctx *Context) ([]byte, error) {
	enq := ctx.Clone()
	enq.Workflow = workflow
	enq.TaskKey = taskKey
	return json.Marshal(struct {
		Workflow  string                 `json:"workflow"`
		TaskKey   string                 `json:"task_key"`
		IDs       [3]int                 `json:"ids"`
		Executed  bool                   `json:"executed"`
		Completed bool                   `json:"completed"`
		Success   bool                   `json:"success"`
		Cache     map[string]interface{} `json:"cache"`
	}{
		Workflow:  enq.Workflow,
		TaskKey:   enq.TaskKey,
		IDs:       enq.IDs,
		Executed:  enq.Executed,
		Completed: enq.Completed,
		Success:   enq.Success,
		Cache:     enq.Cache,
	})
}
