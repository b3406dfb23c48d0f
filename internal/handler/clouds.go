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

// Package handler builds the Storage/Queue pair a serverless handler needs
// from process configuration, one real cloud SDK client per provider. It is
// shared by cmd/workflow-handler and cmd/executor-handler so neither main
// duplicates the AWS/GCP/Azure client bootstrapping.
package handler

import (
	"context"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	dynamodbsdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	sqssdk "github.com/aws/aws-sdk-go-v2/service/sqs"

	firestoresdk "cloud.google.com/go/firestore"
	pubsubsdk "cloud.google.com/go/pubsub"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/tombee/switchboard/internal/cloud"
	"github.com/tombee/switchboard/internal/config"
	queuememory "github.com/tombee/switchboard/internal/queue/memory"
	"github.com/tombee/switchboard/internal/queue/pubsub"
	"github.com/tombee/switchboard/internal/queue/servicebus"
	"github.com/tombee/switchboard/internal/queue/sqs"
	"github.com/tombee/switchboard/internal/storage/dynamodb"
	"github.com/tombee/switchboard/internal/storage/firestore"
	"github.com/tombee/switchboard/internal/storage/memory"
	"github.com/tombee/switchboard/internal/storage/postgres"
	"github.com/tombee/switchboard/internal/storage/sqlite"
	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow"
)

// Backends is the Storage/Queue pair a handler needs, plus whatever must be
// released (a DB pool, a Pub/Sub or Service Bus client) before the process
// exits.
type Backends struct {
	Storage workflow.Storage
	Queue   workflow.Queue
	Close   func() error
}

// Open builds the Storage/Queue pair named by cfg.Cloud. Every branch
// resolves credentials through that provider's own SDK default chain
// (aws-sdk-go-v2/config.LoadDefaultConfig, Application Default Credentials
// for firestore/pubsub, azidentity.NewDefaultAzureCredential) rather than a
// bespoke auth layer (DESIGN.md's dropped-dependency note on jwt/oauth2).
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	switch cfg.Cloud {
	case cloud.AWS:
		return openAWS(ctx, cfg)
	case cloud.GCP:
		return openGCP(ctx, cfg)
	case cloud.Azure:
		return openAzure(ctx, cfg)
	case cloud.Custom:
		return openCustom(), nil
	default:
		return nil, &errors.ConfigError{Key: "SWITCHBOARD_CLOUD", Reason: "unsupported cloud " + string(cfg.Cloud)}
	}
}

// awsDynamoDBConfig reads table names from the environment, falling back to
// fixed switchboard_-prefixed defaults so a handler works against a fresh
// deployment without bespoke per-table configuration.
func awsDynamoDBConfig(cfg *config.Config) dynamodb.Config {
	return dynamodb.Config{
		StatesTable:    envOr("SWITCHBOARD_DYNAMODB_STATES_TABLE", "switchboard_states"),
		CountersTable:  envOr("SWITCHBOARD_DYNAMODB_COUNTERS_TABLE", "switchboard_counters"),
		ResourcesTable: envOr("SWITCHBOARD_DYNAMODB_RESOURCES_TABLE", "switchboard_resources"),
	}
}

func openAWS(ctx context.Context, cfg *config.Config) (*Backends, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &errors.ConfigError{Key: "aws", Reason: "failed to load default AWS config", Cause: err}
	}

	storageBackend := dynamodb.New(dynamodbsdk.NewFromConfig(awsCfg), awsDynamoDBConfig(cfg))
	queueBackend := sqs.New(sqssdk.NewFromConfig(awsCfg))

	return &Backends{
		Storage: storageBackend,
		Queue:   queueBackend,
		Close:   func() error { return nil },
	}, nil
}

func openGCP(ctx context.Context, cfg *config.Config) (*Backends, error) {
	projectID := os.Getenv("SWITCHBOARD_GCP_PROJECT")
	if projectID == "" {
		return nil, &errors.ConfigError{Key: "SWITCHBOARD_GCP_PROJECT", Reason: "required to construct firestore/pubsub clients"}
	}

	firestoreClient, err := firestoresdk.NewClient(ctx, projectID)
	if err != nil {
		return nil, &errors.ConfigError{Key: "gcp.firestore", Reason: "failed to construct firestore client", Cause: err}
	}
	pubsubClient, err := pubsubsdk.NewClient(ctx, projectID)
	if err != nil {
		_ = firestoreClient.Close()
		return nil, &errors.ConfigError{Key: "gcp.pubsub", Reason: "failed to construct pubsub client", Cause: err}
	}

	return &Backends{
		Storage: firestore.New(firestoreClient),
		Queue:   pubsub.New(pubsubClient),
		Close: func() error {
			pubsubClient.Close()
			return firestoreClient.Close()
		},
	}, nil
}

func openAzure(ctx context.Context, cfg *config.Config) (*Backends, error) {
	if cfg.StorageDSN == "" {
		return nil, &errors.ConfigError{Key: "SWITCHBOARD_STORAGE_DSN", Reason: "azure relational backend requires a sqlite file path or postgres:// connection string"}
	}

	var (
		storageBackend interface {
			workflow.Storage
			Close() error
		}
		err error
	)
	if strings.HasPrefix(cfg.StorageDSN, "postgres://") || strings.HasPrefix(cfg.StorageDSN, "postgresql://") {
		storageBackend, err = postgres.New(postgres.Config{ConnectionString: cfg.StorageDSN})
	} else {
		storageBackend, err = sqlite.New(sqlite.Config{Path: cfg.StorageDSN, WAL: true})
	}
	if err != nil {
		return nil, err
	}

	namespace := os.Getenv("SWITCHBOARD_AZURE_NAMESPACE")
	if namespace == "" {
		_ = storageBackend.Close()
		return nil, &errors.ConfigError{Key: "SWITCHBOARD_AZURE_NAMESPACE", Reason: "required to construct the Service Bus client"}
	}
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		_ = storageBackend.Close()
		return nil, &errors.ConfigError{Key: "azure.credential", Reason: "failed to resolve default Azure credential", Cause: err}
	}
	sbClient, err := azservicebus.NewClient(namespace, credential, nil)
	if err != nil {
		_ = storageBackend.Close()
		return nil, &errors.ConfigError{Key: "azure.servicebus", Reason: "failed to construct Service Bus client", Cause: err}
	}

	return &Backends{
		Storage: storageBackend,
		Queue:   servicebus.New(sbClient),
		Close: func() error {
			_ = sbClient.Close(ctx)
			return storageBackend.Close()
		},
	}, nil
}

// openCustom backs local development and the sample programs in
// cmd/workflow-handler and cmd/executor-handler: an in-process Storage and
// Queue with no persistence beyond this one process. A real Custom
// deployment supplies its own bring-your-own transport via
// workflow.SetCustomExecutorQueue instead of this package.
func openCustom() *Backends {
	return &Backends{
		Storage: memory.New(),
		Queue:   queuememory.New(),
		Close:   func() error { return nil },
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
