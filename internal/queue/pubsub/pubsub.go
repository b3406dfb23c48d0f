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

// Package pubsub implements pkg/workflow.Queue on Google Cloud Pub/Sub,
// backing the GCP cloud selection's invocation/executor queues.
package pubsub

import (
	"context"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/tombee/switchboard/pkg/errors"
)

// Queue sends workflow messages to Pub/Sub. endpoint, as passed to Send,
// is the destination topic ID.
type Queue struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New wraps an already-configured pubsub.Client. Callers build the client
// with pubsub.NewClient(ctx, projectID) so credential and project
// resolution stay out of this package.
func New(client *pubsub.Client) *Queue {
	return &Queue{client: client, topics: make(map[string]*pubsub.Topic)}
}

func (q *Queue) topic(endpoint string) *pubsub.Topic {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.topics[endpoint]; ok {
		return t
	}
	t := q.client.Topic(endpoint)
	q.topics[endpoint] = t
	return t
}

// Send publishes body to the Pub/Sub topic named by endpoint and blocks
// until the publish result is available.
func (q *Queue) Send(ctx context.Context, endpoint, body string) error {
	result := q.topic(endpoint).Publish(ctx, &pubsub.Message{Data: []byte(body)})
	if _, err := result.Get(ctx); err != nil {
		return &errors.TransportError{Operation: "pubsub.publish", Endpoint: endpoint, Cause: err}
	}
	return nil
}

// Close stops every topic client this Queue created.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.topics {
		t.Stop()
	}
}
