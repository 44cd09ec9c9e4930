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

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/crmsync/internal/models"
)

// dbtx is the subset of *pgxpool.Pool the store uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists candidates, activities and sync runs in PostgreSQL.
type Postgres struct {
	db   dbtx
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := &Postgres{db: pool, pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure candidate schema: %w", err)
	}
	slog.Info("postgres candidate store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS candidates (
			id                BIGSERIAL PRIMARY KEY,
			organization_id   TEXT NOT NULL,
			hubspot_id        TEXT NOT NULL UNIQUE,
			first_name        TEXT NOT NULL DEFAULT '',
			last_name         TEXT NOT NULL DEFAULT '',
			personal_email    TEXT,
			phone             TEXT,
			current_company   TEXT,
			current_job_title TEXT,
			relationship_type TEXT NOT NULL,
			last_sync_at      TIMESTAMPTZ,
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			updated_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_candidates_org ON candidates(organization_id);

		CREATE TABLE IF NOT EXISTS candidate_activities (
			id            BIGSERIAL PRIMARY KEY,
			candidate_id  TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			description   TEXT DEFAULT '',
			performed_by  TEXT NOT NULL,
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_activities_candidate ON candidate_activities(candidate_id);

		CREATE TABLE IF NOT EXISTS sync_runs (
			id              TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			status          TEXT NOT NULL,
			succeeded       INTEGER DEFAULT 0,
			failed          INTEGER DEFAULT 0,
			skipped         INTEGER DEFAULT 0,
			pages           INTEGER DEFAULT 0,
			cursor          TEXT DEFAULT '',
			error           TEXT DEFAULT '',
			started_at      TIMESTAMPTZ NOT NULL,
			finished_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_sync_runs_org ON sync_runs(organization_id, started_at DESC);
	`)
	return err
}

// UpsertCandidate inserts or fully overwrites the candidate with the same
// HubSpot id.
func (s *Postgres) UpsertCandidate(ctx context.Context, c models.Candidate) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO candidates
			(organization_id, hubspot_id, first_name, last_name, personal_email, phone,
			 current_company, current_job_title, relationship_type, last_sync_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hubspot_id) DO UPDATE SET
			organization_id   = EXCLUDED.organization_id,
			first_name        = EXCLUDED.first_name,
			last_name         = EXCLUDED.last_name,
			personal_email    = EXCLUDED.personal_email,
			phone             = EXCLUDED.phone,
			current_company   = EXCLUDED.current_company,
			current_job_title = EXCLUDED.current_job_title,
			relationship_type = EXCLUDED.relationship_type,
			last_sync_at      = EXCLUDED.last_sync_at,
			updated_at        = EXCLUDED.updated_at
	`, c.OrganizationID, c.HubSpotID, c.FirstName, c.LastName, c.PersonalEmail, c.Phone,
		c.CurrentCompany, c.CurrentJobTitle, c.RelationshipType, c.LastSyncAt, c.UpdatedAt)
	return err
}

// AppendActivity writes one audit entry.
func (s *Postgres) AppendActivity(ctx context.Context, a models.Activity) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO candidate_activities (candidate_id, activity_type, description, performed_by)
		VALUES ($1, $2, $3, $4)
	`, a.CandidateID, a.ActivityType, a.Description, a.PerformedBy)
	return err
}

// StartRun records a new running sync.
func (s *Postgres) StartRun(ctx context.Context, r models.SyncRun) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sync_runs (id, organization_id, status, cursor, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.OrganizationID, r.Status, r.Cursor, r.StartedAt)
	return err
}

// FinishRun stores the outcome of a sync run.
func (s *Postgres) FinishRun(ctx context.Context, r models.SyncRun) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sync_runs
		SET status = $1, succeeded = $2, failed = $3, skipped = $4, pages = $5,
		    cursor = $6, error = $7, finished_at = $8
		WHERE id = $9
	`, r.Status, r.Succeeded, r.Failed, r.Skipped, r.Pages, r.Cursor, r.Error, r.FinishedAt, r.ID)
	return err
}

// LatestRun returns the most recent run for an organization, or nil.
func (s *Postgres) LatestRun(ctx context.Context, organizationID string) (*models.SyncRun, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, organization_id, status, succeeded, failed, skipped, pages,
		       cursor, error, started_at, finished_at
		FROM sync_runs
		WHERE organization_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, organizationID)
	return scanRun(row)
}

// ListRuns returns recent runs for an organization, newest first.
func (s *Postgres) ListRuns(ctx context.Context, organizationID string, limit int) ([]models.SyncRun, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, organization_id, status, succeeded, failed, skipped, pages,
		       cursor, error, started_at, finished_at
		FROM sync_runs
		WHERE organization_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// Ping checks the connection.
func (s *Postgres) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanRun(row pgx.Row) (*models.SyncRun, error) {
	var r models.SyncRun
	err := row.Scan(
		&r.ID, &r.OrganizationID, &r.Status, &r.Succeeded, &r.Failed, &r.Skipped, &r.Pages,
		&r.Cursor, &r.Error, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRuns(rows pgx.Rows) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		if err := rows.Scan(
			&r.ID, &r.OrganizationID, &r.Status, &r.Succeeded, &r.Failed, &r.Skipped, &r.Pages,
			&r.Cursor, &r.Error, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
