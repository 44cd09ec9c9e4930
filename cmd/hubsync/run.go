// Copyright (c) 2026 John Earle
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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bcem/crmsync/internal/app"
	"github.com/bcem/crmsync/internal/syncer"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		orgID  string
		resume bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync every HubSpot contact for one organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.RemoteExecutor() {
				return fmt.Errorf("run executes in-process; unset EXECUTOR_URL")
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Executor.Run(cmd.Context(), syncer.Request{OrganizationID: orgID, Resume: resume})
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("sync organization %q: %w", orgID, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "Organization id to sync into")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue from the cursor of a failed run")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
