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
	"log/slog"
	"time"
)

// InvocationRequest describes one delivery of a queue message into a
// handler entrypoint (the workflow handler or the executor handler), for
// logging purposes.
type InvocationRequest struct {
	// Handler names which entrypoint received the message ("workflow" or "executor").
	Handler string

	// CorrelationID identifies this one handler invocation.
	CorrelationID string

	// Workflow is the workflow name carried by the message.
	Workflow string

	// Metadata contains additional request metadata (e.g. task_key).
	Metadata map[string]interface{}
}

// InvocationResponse describes the outcome of a handler invocation.
type InvocationResponse struct {
	// StatusCode is the handler's returned status code (200/400/404).
	StatusCode int

	// Error is the error message if the invocation failed.
	Error string

	// DurationMs is the duration of the invocation in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogInvocationRequest logs an incoming handler invocation.
func LogInvocationRequest(logger *slog.Logger, req *InvocationRequest) {
	attrs := []any{
		EventKey, "invocation_received",
		"handler", req.Handler,
	}

	if req.Workflow != "" {
		attrs = append(attrs, WorkflowKey, req.Workflow)
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("handler invocation received", attrs...)
}

// LogInvocationResponse logs the outcome of a handler invocation.
func LogInvocationResponse(logger *slog.Logger, req *InvocationRequest, resp *InvocationResponse) {
	attrs := []any{
		EventKey, "invocation_completed",
		"handler", req.Handler,
		"status_code", resp.StatusCode,
		DurationKey, resp.DurationMs,
	}

	if req.Workflow != "" {
		attrs = append(attrs, WorkflowKey, req.Workflow)
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "handler invocation completed"

	if resp.StatusCode >= 400 {
		level = slog.LevelError
		message = "handler invocation failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// HandlerMiddleware wraps a handler entrypoint with request/response logging.
type HandlerMiddleware struct {
	logger *slog.Logger
}

// NewHandlerMiddleware creates a new handler logging middleware.
func NewHandlerMiddleware(logger *slog.Logger) *HandlerMiddleware {
	return &HandlerMiddleware{logger: logger}
}

// Wrap logs the request and response around a handler call that returns a
// status code (the shape both the workflow handler and executor handler use).
func (m *HandlerMiddleware) Wrap(req *InvocationRequest, handler func() (int, error)) (int, error) {
	start := time.Now()

	LogInvocationRequest(m.logger, req)

	statusCode, err := handler()

	duration := time.Since(start).Milliseconds()

	resp := &InvocationResponse{
		StatusCode: statusCode,
		DurationMs: duration,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogInvocationResponse(m.logger, req, resp)

	return statusCode, err
}
