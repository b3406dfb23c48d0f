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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogInvocationRequest(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{Level: "info", Format: FormatJSON, Output: &buf}
	logger := New(cfg)

	req := &InvocationRequest{
		Handler:       "executor",
		CorrelationID: "correlation-123",
		Workflow:      "orders",
		Metadata: map[string]interface{}{
			"task_key": "charge-card",
		},
	}

	LogInvocationRequest(logger, req)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "invocation_received" {
		t.Errorf("expected event to be 'invocation_received', got: %v", logEntry["event"])
	}
	if logEntry["handler"] != "executor" {
		t.Errorf("expected handler to be 'executor', got: %v", logEntry["handler"])
	}
	if logEntry["correlation_id"] != "correlation-123" {
		t.Errorf("expected correlation_id to be 'correlation-123', got: %v", logEntry["correlation_id"])
	}
	if logEntry[WorkflowKey] != "orders" {
		t.Errorf("expected workflow to be 'orders', got: %v", logEntry[WorkflowKey])
	}
	if logEntry["task_key"] != "charge-card" {
		t.Errorf("expected task_key to be 'charge-card', got: %v", logEntry["task_key"])
	}
}

func TestLogInvocationRequest_MinimalFields(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{Level: "info", Format: FormatJSON, Output: &buf}
	logger := New(cfg)

	req := &InvocationRequest{Handler: "workflow"}

	LogInvocationRequest(logger, req)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if _, ok := logEntry["correlation_id"]; ok {
		t.Errorf("expected no correlation_id field for minimal request")
	}
	if _, ok := logEntry[WorkflowKey]; ok {
		t.Errorf("expected no workflow field for minimal request")
	}
}

func TestLogInvocationResponse_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{Level: "info", Format: FormatJSON, Output: &buf}
	logger := New(cfg)

	req := &InvocationRequest{Handler: "workflow", Workflow: "orders", CorrelationID: "correlation-123"}
	resp := &InvocationResponse{
		StatusCode: 200,
		DurationMs: 150,
		Metadata:   map[string]interface{}{"steps_enqueued": 1},
	}

	LogInvocationResponse(logger, req, resp)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "invocation_completed" {
		t.Errorf("expected event to be 'invocation_completed', got: %v", logEntry["event"])
	}
	if logEntry["status_code"] != float64(200) {
		t.Errorf("expected status_code to be 200, got: %v", logEntry["status_code"])
	}
	if logEntry["duration_ms"] != float64(150) {
		t.Errorf("expected duration_ms to be 150, got: %v", logEntry["duration_ms"])
	}
	if logEntry["level"] != "INFO" {
		t.Errorf("expected level to be 'INFO', got: %v", logEntry["level"])
	}
	if logEntry["steps_enqueued"] != float64(1) {
		t.Errorf("expected steps_enqueued to be 1, got: %v", logEntry["steps_enqueued"])
	}
	if _, ok := logEntry["error"]; ok {
		t.Errorf("expected no error field for successful response")
	}
}

func TestLogInvocationResponse_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{Level: "info", Format: FormatJSON, Output: &buf}
	logger := New(cfg)

	req := &InvocationRequest{Handler: "executor", CorrelationID: "correlation-123"}
	resp := &InvocationResponse{StatusCode: 400, Error: "task failed", DurationMs: 50}

	LogInvocationResponse(logger, req, resp)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["status_code"] != float64(400) {
		t.Errorf("expected status_code to be 400, got: %v", logEntry["status_code"])
	}
	if logEntry["error"] != "task failed" {
		t.Errorf("expected error to be 'task failed', got: %v", logEntry["error"])
	}
	if logEntry["level"] != "ERROR" {
		t.Errorf("expected level to be 'ERROR', got: %v", logEntry["level"])
	}
	if logEntry["msg"] != "handler invocation failed" {
		t.Errorf("expected msg to be 'handler invocation failed', got: %v", logEntry["msg"])
	}
}

func TestHandlerMiddleware_Wrap_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{Level: "info", Format: FormatJSON, Output: &buf}
	logger := New(cfg)
	middleware := NewHandlerMiddleware(logger)

	req := &InvocationRequest{Handler: "workflow", CorrelationID: "correlation-123"}

	handlerCalled := false
	statusCode, err := middleware.Wrap(req, func() (int, error) {
		handlerCalled = true
		return 200, nil
	})

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if statusCode != 200 {
		t.Errorf("expected status code 200, got: %d", statusCode)
	}
	if !handlerCalled {
		t.Errorf("expected handler to be called")
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d: %s", len(lines), output)
	}

	var requestLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &requestLog); err != nil {
		t.Fatalf("expected valid JSON for request log: %v", err)
	}
	if requestLog["event"] != "invocation_received" {
		t.Errorf("expected first log to be invocation_received, got: %v", requestLog["event"])
	}

	var responseLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &responseLog); err != nil {
		t.Fatalf("expected valid JSON for response log: %v", err)
	}
	if responseLog["event"] != "invocation_completed" {
		t.Errorf("expected second log to be invocation_completed, got: %v", responseLog["event"])
	}
	if responseLog["status_code"] != float64(200) {
		t.Errorf("expected status_code to be 200, got: %v", responseLog["status_code"])
	}
	if _, ok := responseLog["duration_ms"]; !ok {
		t.Errorf("expected duration_ms to be present")
	}
}

func TestHandlerMiddleware_Wrap_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{Level: "info", Format: FormatJSON, Output: &buf}
	logger := New(cfg)
	middleware := NewHandlerMiddleware(logger)

	req := &InvocationRequest{Handler: "executor"}

	testErr := errors.New("handler error")
	statusCode, err := middleware.Wrap(req, func() (int, error) {
		return 400, testErr
	})

	if err != testErr {
		t.Errorf("expected error to be returned, got: %v", err)
	}
	if statusCode != 400 {
		t.Errorf("expected status code 400, got: %d", statusCode)
	}

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var responseLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &responseLog); err != nil {
		t.Fatalf("expected valid JSON for response log: %v", err)
	}
	if responseLog["error"] != "handler error" {
		t.Errorf("expected error to be 'handler error', got: %v", responseLog["error"])
	}
	if responseLog["level"] != "ERROR" {
		t.Errorf("expected level to be ERROR, got: %v", responseLog["level"])
	}
}

func TestNewHandlerMiddleware(t *testing.T) {
	logger := New(nil)
	middleware := NewHandlerMiddleware(logger)

	if middleware == nil {
		t.Errorf("expected non-nil middleware")
	}
	if middleware.logger != logger {
		t.Errorf("expected middleware to use provided logger")
	}
}
