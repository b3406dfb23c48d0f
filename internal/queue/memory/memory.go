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

// Package memory implements pkg/workflow.Queue entirely in-process, one
// FIFO mailbox per endpoint. It backs the Custom cloud selection for unit
// tests that need to assert on what an invocation or executor queue
// received, modeled on the signal-channel pattern of the teacher's
// internal/daemon/queue.MemoryQueue.
package memory

import (
	"context"
	"sync"

	"github.com/tombee/switchboard/pkg/errors"
)

// Queue is an in-memory, multi-mailbox workflow.Queue.
type Queue struct {
	mu      sync.Mutex
	mailbox map[string][]string
	signal  map[string]chan struct{}
	closed  bool
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		mailbox: make(map[string][]string),
		signal:  make(map[string]chan struct{}),
	}
}

// Send appends body to endpoint's mailbox.
func (q *Queue) Send(ctx context.Context, endpoint, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return &errors.TransportError{Operation: "memory.send", Endpoint: endpoint, Cause: errQueueClosed}
	}

	q.mailbox[endpoint] = append(q.mailbox[endpoint], body)
	if ch, ok := q.signal[endpoint]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Drain removes and returns every message delivered to endpoint so far, in
// delivery order. Tests use this to assert on what a Response/enqueue sent.
func (q *Queue) Drain(endpoint string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.mailbox[endpoint]
	q.mailbox[endpoint] = nil
	return msgs
}

// Len reports how many undrained messages are queued for endpoint.
func (q *Queue) Len(endpoint string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mailbox[endpoint])
}

// Close marks the queue closed; further Send calls fail.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var errQueueClosed = queueClosedError{}

type queueClosedError struct{}

func (queueClosedError) Error() string { return "queue is closed" }
