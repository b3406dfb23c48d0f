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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/config"
	"github.com/tombee/switchboard/pkg/workflow"
)

// newRegisterResourceCommand builds `switchboard register-resource`, which
// writes a Resource row (§3, §6.3) so a later Storage.GetEndpoint lookup for
// (workflow, component) resolves to the given endpoint.
func newRegisterResourceCommand() *cobra.Command {
	var (
		component string
		endpoint  string
	)

	cmd := &cobra.Command{
		Use:   "register-resource <workflow>",
		Short: "Register a queue endpoint for a workflow",
		Long: `register-resource tells switchboard where a workflow's invocation and
executor queues live, by writing a Resource row keyed by
(component, workflow). Run this once per workflow per queue before the
first trigger.

Examples:
  switchboard register-resource onboarding \
      --component invocation --endpoint https://sqs.../onboarding-invocation

  switchboard register-resource onboarding \
      --component executor --endpoint https://sqs.../onboarding-executor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			comp, err := parseComponent(component)
			if err != nil {
				return err
			}
			if endpoint == "" {
				return fmt.Errorf("--endpoint is required")
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			backend, err := openBackend(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := backend.RegisterEndpoint(ctx, comp, name, endpoint); err != nil {
				return fmt.Errorf("failed to register %s endpoint for %q: %w", comp, name, err)
			}

			cmd.Printf("registered %s endpoint for %s: %s\n", comp, name, endpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&component, "component", "", "queue component: invocation or executor")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "the queue endpoint to register")
	_ = cmd.MarkFlagRequired("component")
	_ = cmd.MarkFlagRequired("endpoint")

	return cmd
}

// parseComponent maps the CLI's short component names onto
// workflow.Component (§3 "component ∈ {InvocationQueue, ExecutorQueue}").
func parseComponent(raw string) (workflow.Component, error) {
	switch raw {
	case "invocation":
		return workflow.InvocationQueue, nil
	case "executor":
		return workflow.ExecutorQueue, nil
	default:
		return "", fmt.Errorf("--component must be %q or %q, got %q", "invocation", "executor", raw)
	}
}
