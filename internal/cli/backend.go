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

package cli

import (
	"context"
	"strings"

	"github.com/tombee/switchboard/internal/cloud"
	"github.com/tombee/switchboard/internal/config"
	queuememory "github.com/tombee/switchboard/internal/queue/memory"
	"github.com/tombee/switchboard/internal/storage/memory"
	"github.com/tombee/switchboard/internal/storage/postgres"
	"github.com/tombee/switchboard/internal/storage/sqlite"
	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
)

// resourceBackend is the subset of a concrete storage backend the CLI
// needs: the full workflow.Storage contract plus the ability to register a
// queue endpoint and release any held connection. Every storage backend in
// internal/storage implements this.
type resourceBackend interface {
	workflow.Storage
	RegisterEndpoint(ctx context.Context, component workflow.Component, name, endpoint string) error
	Close() error
}

// sharedMemoryBackend keeps the in-memory backend alive across a single CLI
// process invocation when SWITCHBOARD_CLOUD=custom — without it, each
// command would start from an empty registry and never see a previous
// register-resource call.
var sharedMemoryBackend = memory.New()

// openBackend constructs the resourceBackend named by cfg.Cloud. AWS and
// GCP backends need their own SDK client plumbing (region, credentials);
// until that wiring is exposed through config, those clouds are only
// reachable from cmd/workflow-handler and cmd/executor-handler, which
// receive a pre-built client from their deployment environment. The CLI
// itself supports Azure's relational backend — sqlite for a single
// operator box, postgres when cfg.StorageDSN names one (picked by scheme,
// same as cmd/workflow-handler) — and the in-memory Custom backend used by
// tests.
func openBackend(cfg *config.Config) (resourceBackend, error) {
	switch cfg.Cloud {
	case cloud.Custom:
		return sharedMemoryBackend, nil
	case cloud.Azure:
		if cfg.StorageDSN == "" {
			return nil, &errors.ConfigError{Key: "SWITCHBOARD_STORAGE_DSN", Reason: "azure relational backend requires a sqlite file path or postgres:// connection string"}
		}
		if isPostgresDSN(cfg.StorageDSN) {
			return postgres.New(postgres.Config{ConnectionString: cfg.StorageDSN})
		}
		return sqlite.New(sqlite.Config{Path: cfg.StorageDSN, WAL: true})
	default:
		return nil, &errors.ConfigError{
			Key:    "SWITCHBOARD_CLOUD",
			Reason: "the switchboard CLI only drives sqlite/postgres (azure) and in-memory (custom) backends directly; use cmd/workflow-handler for aws/gcp",
		}
	}
}

// isPostgresDSN reports whether dsn names a PostgreSQL connection rather
// than a sqlite file path.
func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// sharedMemoryQueue mirrors sharedMemoryBackend: it keeps the in-memory
// queue alive across a single CLI process invocation so `trigger` and any
// Custom executor in the same process see the same mailboxes.
var sharedMemoryQueue = queuememory.New()

// openQueue constructs the workflow.Queue named by cfg.Cloud. Like
// openBackend, only the backends the CLI can drive without a deployment
// environment's pre-built SDK client are supported here; cmd/workflow-handler
// and cmd/executor-handler wire the cloud queues (SQS/Pub/Sub/Service Bus)
// directly against their own client.
func openQueue(cfg *config.Config) (workflow.Queue, error) {
	switch cfg.Cloud {
	case cloud.Custom:
		return sharedMemoryQueue, nil
	default:
		return nil, &errors.ConfigError{
			Key:    "SWITCHBOARD_CLOUD",
			Reason: "the switchboard CLI only drives the in-memory (custom) queue directly; use cmd/workflow-handler or trigger from the cloud console for aws/gcp/azure",
		}
	}
}
