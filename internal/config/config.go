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

// Package config carries the process-wide settings a handler needs to wire
// up storage, queue, and workflow identity before calling workflow.Init.
// Handlers are short-lived (one invocation per process), so configuration is
// read once from the environment rather than from a config file; this
// trades the teacher's layered YAML+XDG config (internal/config/config.go,
// xdg.go) for the flat env-var surface serverless handlers actually get.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/tombee/switchboard/internal/cloud"
	"github.com/tombee/switchboard/pkg/errors"
)

// Config is the resolved process configuration for a switchboard handler.
type Config struct {
	// Cloud selects the Storage/Queue implementation (SWITCHBOARD_CLOUD).
	Cloud cloud.Cloud

	// WorkflowName identifies the workflow this process executes
	// (SWITCHBOARD_WORKFLOW).
	WorkflowName string

	// DefaultRetries is the retry budget assigned to newly created steps
	// (SWITCHBOARD_DEFAULT_RETRIES, default 0 per DESIGN.md's open-question
	// decision: a step with no explicit retry budget executes exactly once).
	DefaultRetries int

	// StorageDSN locates the relational store used under the azure cloud
	// (handlers and CLI): a postgres:// or postgresql:// URL selects postgres, any
	// other value is a sqlite file path (SWITCHBOARD_STORAGE_DSN). The
	// dynamodb and firestore backends do not read it.
	StorageDSN string

	// InvocationQueueName and ExecutorQueueName name the two queues a
	// handler resolves endpoints for via Storage.GetEndpoint
	// (SWITCHBOARD_INVOCATION_QUEUE, SWITCHBOARD_EXECUTOR_QUEUE).
	InvocationQueueName string
	ExecutorQueueName   string

	// TraceSampleRate is the fraction (0.0-1.0) of invocations the handler's
	// tracer samples (SWITCHBOARD_TRACE_SAMPLE_RATE, default 1.0). The
	// decision is made when the invocation span starts, so failed
	// invocations are sampled at the same rate as successful ones.
	TraceSampleRate float64
}

// FromEnv reads a Config from the process environment. It is tolerant of
// unset optional values (DefaultRetries defaults to 0, queue names default
// to "invocation"/"executor") but requires SWITCHBOARD_CLOUD and
// SWITCHBOARD_WORKFLOW, returning a *errors.ConfigError naming whichever is
// missing first.
func FromEnv() (*Config, error) {
	rawCloud := os.Getenv("SWITCHBOARD_CLOUD")
	if rawCloud == "" {
		return nil, &errors.ConfigError{Key: "SWITCHBOARD_CLOUD", Reason: "must be set to aws, gcp, azure, or custom"}
	}
	parsedCloud, err := cloud.Parse(rawCloud)
	if err != nil {
		return nil, err
	}

	workflowName := os.Getenv("SWITCHBOARD_WORKFLOW")
	if workflowName == "" {
		return nil, &errors.ConfigError{Key: "SWITCHBOARD_WORKFLOW", Reason: "must name the workflow this process executes"}
	}

	retries := 0
	if raw := os.Getenv("SWITCHBOARD_DEFAULT_RETRIES"); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, &errors.ConfigError{Key: "SWITCHBOARD_DEFAULT_RETRIES", Reason: "must be an integer", Cause: err}
		}
		retries = n
	}

	invocationQueue := os.Getenv("SWITCHBOARD_INVOCATION_QUEUE")
	if invocationQueue == "" {
		invocationQueue = "invocation"
	}
	executorQueue := os.Getenv("SWITCHBOARD_EXECUTOR_QUEUE")
	if executorQueue == "" {
		executorQueue = "executor"
	}

	sampleRate := 1.0
	if raw := os.Getenv("SWITCHBOARD_TRACE_SAMPLE_RATE"); raw != "" {
		rate, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, &errors.ConfigError{Key: "SWITCHBOARD_TRACE_SAMPLE_RATE", Reason: "must be a float between 0.0 and 1.0", Cause: err}
		}
		sampleRate = rate
	}

	return &Config{
		Cloud:               parsedCloud,
		WorkflowName:        workflowName,
		DefaultRetries:      retries,
		StorageDSN:          os.Getenv("SWITCHBOARD_STORAGE_DSN"),
		InvocationQueueName: invocationQueue,
		ExecutorQueueName:   executorQueue,
		TraceSampleRate:     sampleRate,
	}, nil
}
