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

// Package cli builds the switchboard operator CLI: triggering new runs and
// registering the queue endpoints a workflow resolves at runtime.
package cli

import "github.com/spf13/cobra"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion sets the version information reported by `switchboard version`.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// NewRootCommand builds the root Cobra command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switchboard",
		Short: "switchboard - durable step-based workflow orchestration",
		Long: `switchboard triggers durable, replay-based workflow runs and registers their queue endpoints.

Run 'switchboard register-resource' once per workflow to tell switchboard
where its invocation and executor queues live, then 'switchboard trigger'
to start a new run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newTriggerCommand())
	cmd.AddCommand(newRegisterResourceCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("switchboard %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
