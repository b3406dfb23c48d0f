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

// Package firestore implements pkg/workflow.Storage on Google Cloud
// Firestore, backing the GCP cloud selection (§9 DOMAIN STACK). States
// live in a "states" collection keyed by "<workflow>_<run_id>"; resources
// live in a "resources" collection keyed by "<component>_<workflow>".
package firestore

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
)

// Compile-time interface assertion.
var _ workflow.Storage = (*Backend)(nil)

// Backend is a Firestore-backed workflow.Storage.
type Backend struct {
	client *firestore.Client
}

// New wraps an already-configured firestore.Client. Callers build the
// client with firestore.NewClient(ctx, projectID) so credential and
// project resolution stay out of this package.
func New(client *firestore.Client) *Backend {
	return &Backend{client: client}
}

func stateDocID(name string, runID int) string {
	return fmt.Sprintf("%s_%d", name, runID)
}

func resourceDocID(component workflow.Component, name string) string {
	return fmt.Sprintf("%s_%s", component, name)
}

type stateDoc struct {
	Workflow string                 `firestore:"workflow"`
	RunID    int                    `firestore:"run_id"`
	Steps    string                 `firestore:"steps"`
	Cache    map[string]interface{} `firestore:"cache"`
	Status   string                 `firestore:"status"`
}

// Read returns the stored State for (name, runID), or (nil, nil) if absent.
func (b *Backend) Read(ctx context.Context, name string, runID int) (*workflow.State, error) {
	snap, err := b.client.Collection("states").Doc(stateDocID(name, runID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, &errors.TransportError{Operation: "firestore.get", Endpoint: "states", Cause: err}
	}

	var doc stateDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "failed to decode firestore document: " + err.Error()}
	}

	wire := struct {
		Name   string                 `json:"name"`
		RunID  int                    `json:"run_id"`
		Steps  json.RawMessage        `json:"steps"`
		Cache  map[string]interface{} `json:"cache"`
		Status workflow.Status        `json:"status"`
	}{Name: doc.Workflow, RunID: doc.RunID, Steps: json.RawMessage(doc.Steps), Cache: doc.Cache, Status: workflow.Status(doc.Status)}

	full, err := json.Marshal(wire)
	if err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "failed to reassemble state: " + err.Error()}
	}

	var state workflow.State
	if err := json.Unmarshal(full, &state); err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "corrupt state document: " + err.Error()}
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

	doc := stateDoc{
		Workflow: state.Name,
		RunID:    state.RunID,
		Steps:    string(wire.Steps),
		Cache:    wire.Cache,
		Status:   string(state.Status),
	}
	if doc.Cache == nil {
		doc.Cache = map[string]interface{}{}
	}

	if _, err := b.client.Collection("states").Doc(stateDocID(state.Name, state.RunID)).Set(ctx, doc); err != nil {
		return &errors.TransportError{Operation: "firestore.set", Endpoint: "states", Cause: err}
	}
	return nil
}

// IncrementID allocates the next run_id for name inside a Firestore
// transaction, Firestore's equivalent of the sqlite/postgres backends'
// transactional counter upsert.
func (b *Backend) IncrementID(ctx context.Context, name string) (int, error) {
	docRef := b.client.Collection("run_counters").Doc(name)
	var next int

	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		current := 0
		if err == nil {
			var counter struct {
				NextRunID int `firestore:"next_run_id"`
			}
			if derr := snap.DataTo(&counter); derr != nil {
				return derr
			}
			current = counter.NextRunID
		}

		next = current + 1
		return tx.Set(docRef, map[string]interface{}{"next_run_id": next})
	})
	if err != nil {
		return 0, &errors.TransportError{Operation: "firestore.run_transaction", Endpoint: "run_counters", Cause: err}
	}
	return next, nil
}

// GetEndpoint resolves a queue endpoint registered for (component, name).
func (b *Backend) GetEndpoint(ctx context.Context, name string, component workflow.Component) (string, error) {
	snap, err := b.client.Collection("resources").Doc(resourceDocID(component, name)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", &errors.ConfigError{Key: "endpoint:" + string(component) + ":" + name, Reason: "no endpoint registered for this component/name"}
		}
		return "", &errors.TransportError{Operation: "firestore.get", Endpoint: "resources", Cause: err}
	}

	var doc struct {
		Endpoint string `firestore:"endpoint"`
	}
	if err := snap.DataTo(&doc); err != nil {
		return "", &errors.ContractError{Field: "endpoint", Message: "failed to decode firestore document: " + err.Error()}
	}
	return doc.Endpoint, nil
}

// RegisterEndpoint upserts the queue endpoint for (component, name).
func (b *Backend) RegisterEndpoint(ctx context.Context, component workflow.Component, name, endpoint string) error {
	doc := map[string]interface{}{
		"component": string(component),
		"workflow":  name,
		"endpoint":  endpoint,
	}
	if _, err := b.client.Collection("resources").Doc(resourceDocID(component, name)).Set(ctx, doc); err != nil {
		return &errors.TransportError{Operation: "firestore.set", Endpoint: "resources", Cause: err}
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (b *Backend) Close() error {
	return b.client.Close()
}
