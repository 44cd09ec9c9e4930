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

	"github.com/bcem/crmsync/internal/models"
	"github.com/bcem/crmsync/internal/store"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var (
		orgID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs for an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("open candidate store: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), orgID, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if runs == nil {
				runs = []models.SyncRun{}
			}
			return printJSON(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "Organization id")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum runs to show")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
