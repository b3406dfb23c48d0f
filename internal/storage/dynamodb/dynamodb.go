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

// Package dynamodb implements pkg/workflow.Storage on Amazon DynamoDB,
// backing the AWS cloud selection (§9 DOMAIN STACK). It keeps states,
// run_id counters and resources in three tables, keyed the way the
// sqlite/postgres backends key their equivalent rows: (workflow, run_id),
// workflow, and (component, workflow).
package dynamodb

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
)

// Compile-time interface assertion.
var _ workflow.Storage = (*Backend)(nil)

// Config names the three tables the backend reads and writes.
type Config struct {
	// StatesTable holds one item per (workflow, run_id) state. Partition
	// key "workflow" (S), sort key "run_id" (N).
	StatesTable string

	// CountersTable holds one item per workflow run_id counter.
	// Partition key "workflow" (S).
	CountersTable string

	// ResourcesTable holds registered queue endpoints. Partition key
	// "component" (S), sort key "workflow" (S).
	ResourcesTable string
}

// Backend is a DynamoDB-backed workflow.Storage.
type Backend struct {
	client *dynamodb.Client
	cfg    Config
}

// New wraps an already-configured dynamodb.Client. Callers build the client
// with aws-sdk-go-v2/config.LoadDefaultConfig so credentials and region
// resolution stay out of this package.
func New(client *dynamodb.Client, cfg Config) *Backend {
	return &Backend{client: client, cfg: cfg}
}

type stateItem struct {
	Workflow string `dynamodbav:"workflow"`
	RunID    int    `dynamodbav:"run_id"`
	Steps    string `dynamodbav:"steps"`
	Cache    string `dynamodbav:"cache"`
	Status   string `dynamodbav:"status"`
}

// Read returns the stored State for (name, runID), or (nil, nil) if absent.
func (b *Backend) Read(ctx context.Context, name string, runID int) (*workflow.State, error) {
	key, err := attributevalue.MarshalMap(map[string]interface{}{"workflow": name, "run_id": runID})
	if err != nil {
		return nil, &errors.ContractError{Field: "key", Message: "failed to marshal dynamodb key: " + err.Error()}
	}

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.cfg.StatesTable),
		Key:       key,
	})
	if err != nil {
		return nil, &errors.TransportError{Operation: "dynamodb.get_item", Endpoint: b.cfg.StatesTable, Cause: err}
	}
	if out.Item == nil {
		return nil, nil
	}

	var item stateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "failed to unmarshal dynamodb item: " + err.Error()}
	}

	wire := struct {
		Name   string                 `json:"name"`
		RunID  int                    `json:"run_id"`
		Steps  json.RawMessage        `json:"steps"`
		Cache  map[string]interface{} `json:"cache"`
		Status workflow.Status        `json:"status"`
	}{Name: item.Workflow, RunID: item.RunID, Steps: json.RawMessage(item.Steps), Status: workflow.Status(item.Status)}

	if err := json.Unmarshal([]byte(item.Cache), &wire.Cache); err != nil {
		return nil, &errors.ContractError{Field: "cache", Message: "corrupt cache JSON: " + err.Error()}
	}

	full, err := json.Marshal(wire)
	if err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "failed to reassemble state: " + err.Error()}
	}

	var state workflow.State
	if err := json.Unmarshal(full, &state); err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "corrupt state item: " + err.Error()}
	}
	return &state, nil
}

// Write upserts state keyed by (state.Name, state.RunID).
func (b *Backend) Write(ctx context.Context, state *workflow.State) error {
	if state == nil {
		return &errors.ContractError{Field: "state", Message: "cannot write a nil state"}
	}

	full, err := json.Marshal(state)
	if err != nil {
		return &errors.ContractError{Field: "state", Message: "failed to serialize state: " + err.Error()}
	}
	var wire struct {
		Steps json.RawMessage        `json:"steps"`
		Cache map[string]interface{} `json:"cache"`
	}
	if err := json.Unmarshal(full, &wire); err != nil {
		return &errors.ContractError{Field: "state", Message: "failed to split state: " + err.Error()}
	}
	cacheJSON, err := json.Marshal(wire.Cache)
	if err != nil {
		return &errors.ContractError{Field: "cache", Message: "failed to serialize cache: " + err.Error()}
	}

	item, err := attributevalue.MarshalMap(stateItem{
		Workflow: state.Name,
		RunID:    state.RunID,
		Steps:    string(wire.Steps),
		Cache:    string(cacheJSON),
		Status:   string(state.Status),
	})
	if err != nil {
		return &errors.ContractError{Field: "state", Message: "failed to marshal dynamodb item: " + err.Error()}
	}

	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.cfg.StatesTable),
		Item:      item,
	}); err != nil {
		return &errors.TransportError{Operation: "dynamodb.put_item", Endpoint: b.cfg.StatesTable, Cause: err}
	}
	return nil
}

// IncrementID allocates the next run_id for name using an atomic UpdateItem
// ADD expression, DynamoDB's equivalent of the sqlite/postgres backends'
// transactional counter upsert.
func (b *Backend) IncrementID(ctx context.Context, name string) (int, error) {
	key, err := attributevalue.MarshalMap(map[string]interface{}{"workflow": name})
	if err != nil {
		return 0, &errors.ContractError{Field: "key", Message: "failed to marshal dynamodb key: " + err.Error()}
	}

	one, err := attributevalue.Marshal(1)
	if err != nil {
		return 0, &errors.ContractError{Field: "key", Message: "failed to marshal increment value: " + err.Error()}
	}

	out, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(b.cfg.CountersTable),
		Key:              key,
		UpdateExpression: aws.String("ADD next_run_id :one"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":one": one,
		},
		ReturnValues: ddbtypes.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, &errors.TransportError{Operation: "dynamodb.update_item", Endpoint: b.cfg.CountersTable, Cause: err}
	}

	var result struct {
		NextRunID int `dynamodbav:"next_run_id"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &result); err != nil {
		return 0, &errors.ContractError{Field: "next_run_id", Message: "failed to unmarshal counter: " + err.Error()}
	}
	return result.NextRunID, nil
}

// GetEndpoint resolves a queue endpoint registered for (component, name).
func (b *Backend) GetEndpoint(ctx context.Context, name string, component workflow.Component) (string, error) {
	key, err := attributevalue.MarshalMap(map[string]interface{}{"component": string(component), "workflow": name})
	if err != nil {
		return "", &errors.ContractError{Field: "key", Message: "failed to marshal dynamodb key: " + err.Error()}
	}

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.cfg.ResourcesTable),
		Key:       key,
	})
	if err != nil {
		return "", &errors.TransportError{Operation: "dynamodb.get_item", Endpoint: b.cfg.ResourcesTable, Cause: err}
	}
	if out.Item == nil {
		return "", &errors.ConfigError{Key: "endpoint:" + string(component) + ":" + name, Reason: "no endpoint registered for this component/name"}
	}

	var result struct {
		Endpoint string `dynamodbav:"endpoint"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &result); err != nil {
		return "", &errors.ContractError{Field: "endpoint", Message: "failed to unmarshal resource item: " + err.Error()}
	}
	return result.Endpoint, nil
}

// RegisterEndpoint upserts the queue endpoint for (component, name).
func (b *Backend) RegisterEndpoint(ctx context.Context, component workflow.Component, name, endpoint string) error {
	item, err := attributevalue.MarshalMap(struct {
		Component string `dynamodbav:"component"`
		Workflow  string `dynamodbav:"workflow"`
		Endpoint  string `dynamodbav:"endpoint"`
	}{Component: string(component), Workflow: name, Endpoint: endpoint})
	if err != nil {
		return &errors.ContractError{Field: "resource", Message: "failed to marshal dynamodb item: " + err.Error()}
	}

	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.cfg.ResourcesTable),
		Item:      item,
	}); err != nil {
		return &errors.TransportError{Operation: "dynamodb.put_item", Endpoint: b.cfg.ResourcesTable, Cause: err}
	}
	return nil
}

// Close is a no-op: dynamodb.Client holds no connection to release.
func (b *Backend) Close() error {
	return nil
}
