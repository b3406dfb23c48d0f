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

// Package sqs implements pkg/workflow.Queue on Amazon SQS, backing the
// AWS cloud selection's invocation/executor queues.
package sqs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/tombee/switchboard/pkg/errors"
)

// Queue sends workflow messages to SQS. endpoint, as passed to Send, is
// the destination queue's URL (what Storage.GetEndpoint resolves to for
// an AWS-backed workflow).
type Queue struct {
	client *sqs.Client
}

// New wraps an already-configured sqs.Client. Callers build the client
// with aws-sdk-go-v2/config.LoadDefaultConfig so credential and region
// resolution stay out of this package.
func New(client *sqs.Client) *Queue {
	return &Queue{client: client}
}

// Send publishes body to the SQS queue named by endpoint (its queue URL).
func (q *Queue) Send(ctx context.Context, endpoint, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(endpoint),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return &errors.TransportError{Operation: "sqs.send_message", Endpoint: endpoint, Cause: err}
	}
	return nil
}
