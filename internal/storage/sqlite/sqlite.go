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

// Package sqlite implements pkg/workflow.Storage on top of a local SQLite
// file, for the Azure cloud selection's relational backend and for
// single-node deployments that don't want a managed database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ workflow.Storage = (*Backend)(nil)

// Backend is a SQLite-backed workflow.Storage.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if absent) the database at cfg.Path, configures
// pragmas, and runs migrations.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

// configurePragmas sets SQLite configuration options.
func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",         // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",       // 5 second timeout for lock contention
		"PRAGMA auto_vacuum=INCREMENTAL", // Incremental auto-vacuum for space reclamation
		"PRAGMA synchronous=NORMAL",      // Balance between performance and durability
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL") // Enable WAL mode for concurrent reads
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate creates the states, run_counters, and resources tables if absent.
func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS states (
			workflow TEXT NOT NULL,
			run_id INTEGER NOT NULL,
			steps TEXT NOT NULL,
			cache TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (workflow, run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS run_counters (
			workflow TEXT PRIMARY KEY,
			next_run_id INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			component TEXT NOT NULL,
			workflow TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			PRIMARY KEY (component, workflow)
		)`,
	}

	for _, m := range migrations {
		if _, err := b.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Read returns the stored State for (name, runID), or (nil, nil) if absent.
func (b *Backend) Read(ctx context.Context, name string, runID int) (*workflow.State, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT steps, cache, status FROM states WHERE workflow = ? AND run_id = ?`, name, runID)

	var stepsJSON, cacheJSON, status string
	if err := row.Scan(&stepsJSON, &cacheJSON, &status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &errors.TransportError{Operation: "sqlite.read", Endpoint: name, Cause: err}
	}

	wire := struct {
		Name   string                     `json:"name"`
		RunID  int                        `json:"run_id"`
		Steps  json.RawMessage            `json:"steps"`
		Cache  map[string]interface{}     `json:"cache"`
		Status workflow.Status            `json:"status"`
	}{Name: name, RunID: runID, Steps: json.RawMessage(stepsJSON), Status: workflow.Status(status)}

	if err := json.Unmarshal([]byte(cacheJSON), &wire.Cache); err != nil {
		return nil, &errors.ContractError{Field: "cache", Message: "corrupt cache JSON: " + err.Error()}
	}

	full, err := json.Marshal(wire)
	if err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "failed to reassemble state: " + err.Error()}
	}

	var state workflow.State
	if err := json.Unmarshal(full, &state); err != nil {
		return nil, &errors.ContractError{Field: "state", Message: "corrupt state row: " + err.Error()}
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

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO states (workflow, run_id, steps, cache, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workflow, run_id) DO UPDATE SET
			steps = excluded.steps, cache = excluded.cache, status = excluded.status, updated_at = excluded.updated_at
	`, state.Name, state.RunID, string(wire.Steps), string(cacheJSON), string(state.Status), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &errors.TransportError{Operation: "sqlite.write", Endpoint: state.Name, Cause: err}
	}
	return nil
}

// IncrementID allocates the next run_id for name inside a transaction so
// concurrent triggers never race on the same counter row.
func (b *Backend) IncrementID(ctx context.Context, name string) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &errors.TransportError{Operation: "sqlite.increment_id", Endpoint: name, Cause: err}
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRowContext(ctx, `SELECT next_run_id FROM run_counters WHERE workflow = ?`, name)
	switch err := row.Scan(&next); err {
	case nil:
		next++
		if _, err := tx.ExecContext(ctx, `UPDATE run_counters SET next_run_id = ? WHERE workflow = ?`, next, name); err != nil {
			return 0, &errors.TransportError{Operation: "sqlite.increment_id", Endpoint: name, Cause: err}
		}
	case sql.ErrNoRows:
		next = 1
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_counters (workflow, next_run_id) VALUES (?, ?)`, name, next); err != nil {
			return 0, &errors.TransportError{Operation: "sqlite.increment_id", Endpoint: name, Cause: err}
		}
	default:
		return 0, &errors.TransportError{Operation: "sqlite.increment_id", Endpoint: name, Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &errors.TransportError{Operation: "sqlite.increment_id", Endpoint: name, Cause: err}
	}
	return next, nil
}

// GetEndpoint resolves a queue endpoint registered for (component, name).
func (b *Backend) GetEndpoint(ctx context.Context, name string, component workflow.Component) (string, error) {
	row := b.db.QueryRowContext(ctx, `SELECT endpoint FROM resources WHERE component = ? AND workflow = ?`, string(component), name)
	var endpoint string
	if err := row.Scan(&endpoint); err != nil {
		if err == sql.ErrNoRows {
			return "", &errors.ConfigError{Key: "endpoint:" + string(component) + ":" + name, Reason: "no endpoint registered for this component/name"}
		}
		return "", &errors.TransportError{Operation: "sqlite.get_endpoint", Endpoint: name, Cause: err}
	}
	return endpoint, nil
}

// RegisterEndpoint upserts the queue endpoint for (component, name). Used by
// cmd/switchboard's register-resource subcommand.
func (b *Backend) RegisterEndpoint(ctx context.Context, component workflow.Component, name, endpoint string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO resources (component, workflow, endpoint) VALUES (?, ?, ?)
		ON CONFLICT (component, workflow) DO UPDATE SET endpoint = excluded.endpoint
	`, string(component), name, endpoint)
	if err != nil {
		return &errors.TransportError{Operation: "sqlite.register_endpoint", Endpoint: name, Cause: err}
	}
	return nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}
