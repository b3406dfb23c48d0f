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

// Package servicebus implements pkg/workflow.Queue on Azure Service Bus,
// backing the Azure cloud selection's invocation/executor queues.
package servicebus

import (
	"context"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/tombee/switchboard/pkg/errors"
)

// Queue sends workflow messages to Service Bus. endpoint, as passed to
// Send, is the destination queue or topic name.
type Queue struct {
	client *azservicebus.Client

	mu      sync.Mutex
	senders map[string]*azservicebus.Sender
}

// New wraps an already-configured azservicebus.Client. Callers build the
// client with azservicebus.NewClient(namespace, credential, nil) so
// credential resolution stays out of this package.
func New(client *azservicebus.Client) *Queue {
	return &Queue{client: client, senders: make(map[string]*azservicebus.Sender)}
}

func (q *Queue) sender(ctx context.Context, endpoint string) (*azservicebus.Sender, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.senders[endpoint]; ok {
		return s, nil
	}
	s, err := q.client.NewSender(endpoint, nil)
	if err != nil {
		return nil, err
	}
	q.senders[endpoint] = s
	return s, nil
}

// Send publishes body to the Service Bus queue/topic named by endpoint.
func (q *Queue) Send(ctx context.Context, endpoint, body string) error {
	sender, err := q.sender(ctx, endpoint)
	if err != nil {
		return &errors.TransportError{Operation: "servicebus.new_sender", Endpoint: endpoint, Cause: err}
	}

	msg := &azservicebus.Message{Body: []byte(body)}
	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		return &errors.TransportError{Operation: "servicebus.send_message", Endpoint: endpoint, Cause: err}
	}
	return nil
}

// Close releases every sender this Queue created.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.senders {
		if err := s.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}
