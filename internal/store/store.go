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

// Package store persists candidates, their activity log and sync runs.
package store

import (
	"context"
	"fmt"

	"github.com/bcem/crmsync/internal/config"
	"github.com/bcem/crmsync/internal/models"
)

// Store is the persistence surface used by the sync executor and the CLI.
type Store interface {
	UpsertCandidate(ctx context.Context, c models.Candidate) error
	AppendActivity(ctx context.Context, a models.Activity) error
	StartRun(ctx context.Context, r models.SyncRun) error
	FinishRun(ctx context.Context, r models.SyncRun) error
	LatestRun(ctx context.Context, organizationID string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, organizationID string, limit int) ([]models.SyncRun, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		return OpenPostgres(ctx, cfg.DSN)
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
