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

// newTriggerCommand builds `switchboard trigger <workflow>`, which sends the
// sentinel "new run" message to the invocation queue (§4.4, §4.7 Trigger).
func newTriggerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <workflow>",
		Short: "Start a new workflow run",
		Long: `trigger sends the sentinel new-run message to a workflow's invocation
queue, which re-enters the workflow handler with ids=[-1,-1,-1] and all
outcome flags true. The handler allocates a fresh run_id on receipt.

Examples:
  # Start a new run of the "onboarding" workflow against the cloud named
  # by SWITCHBOARD_CLOUD; the CLI sends only through the custom in-memory
  # queue, so any other cloud returns a configuration error
  switchboard trigger onboarding

  # Start a new run against the local in-memory backend used by tests
  SWITCHBOARD_CLOUD=custom switchboard trigger onboarding`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			backend, err := openBackend(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			queueSender, err := openQueue(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := workflow.Trigger(ctx, backend, queueSender, name); err != nil {
				return fmt.Errorf("failed to trigger workflow %q: %w", name, err)
			}

			cmd.Printf("triggered new run of %s\n", name)
			return nil
		},
	}

	return cmd
}
