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
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bcem/crmsync/internal/models"
)

// candidateRow is the gorm model of the candidates table.
type candidateRow struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	OrganizationID   string `gorm:"not null;index"`
	HubSpotID        string `gorm:"column:hubspot_id;not null;uniqueIndex"`
	FirstName        string `gorm:"not null;default:''"`
	LastName         string `gorm:"not null;default:''"`
	PersonalEmail    *string
	Phone            *string
	CurrentCompany   *string
	CurrentJobTitle  *string
	RelationshipType string `gorm:"not null"`
	LastSyncAt       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (candidateRow) TableName() string { return "candidates" }

type activityRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	CandidateID  string `gorm:"not null;index"`
	ActivityType string `gorm:"not null"`
	Description  string
	PerformedBy  string `gorm:"not null"`
	CreatedAt    time.Time
}

func (activityRow) TableName() string { return "candidate_activities" }

type runRow struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"not null;index"`
	Status         string `gorm:"not null"`
	Succeeded      int
	Failed         int
	Skipped        int
	Pages          int
	Cursor         string
	Error          string
	StartedAt      time.Time `gorm:"not null;index"`
	FinishedAt     *time.Time
}

func (runRow) TableName() string { return "sync_runs" }

// SQLite persists candidates in an embedded SQLite database. It backs local
// development and the CLI when no PostgreSQL is available.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database file and migrates it.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if err := ensureSQLiteDirectory(dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&candidateRow{}, &activityRow{}, &runRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}

	slog.Info("sqlite candidate store initialised", "dsn", dsn)
	return &SQLite{db: db}, nil
}

func ensureSQLiteDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == ":memory:" {
		return nil
	}
	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %q: %w", dir, err)
	}
	return nil
}

// UpsertCandidate inserts or fully overwrites the candidate with the same
// HubSpot id.
func (s *SQLite) UpsertCandidate(ctx context.Context, c models.Candidate) error {
	row := candidateRow{
		OrganizationID:   c.OrganizationID,
		HubSpotID:        c.HubSpotID,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		PersonalEmail:    c.PersonalEmail,
		Phone:            c.Phone,
		CurrentCompany:   c.CurrentCompany,
		CurrentJobTitle:  c.CurrentJobTitle,
		RelationshipType: c.RelationshipType,
		LastSyncAt:       c.LastSyncAt,
		UpdatedAt:        c.UpdatedAt,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hubspot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"organization_id",
			"first_name",
			"last_name",
			"personal_email",
			"phone",
			"current_company",
			"current_job_title",
			"relationship_type",
			"last_sync_at",
			"updated_at",
		}),
	}).Create(&row).Error
}

// AppendActivity writes one audit entry.
func (s *SQLite) AppendActivity(ctx context.Context, a models.Activity) error {
	row := activityRow{
		CandidateID:  a.CandidateID,
		ActivityType: a.ActivityType,
		Description:  a.Description,
		PerformedBy:  a.PerformedBy,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetCandidate returns the candidate with the given HubSpot id, or nil.
func (s *SQLite) GetCandidate(ctx context.Context, hubspotID string) (*models.Candidate, error) {
	var row candidateRow
	err := s.db.WithContext(ctx).Where("hubspot_id = ?", hubspotID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Candidate{
		OrganizationID:   row.OrganizationID,
		HubSpotID:        row.HubSpotID,
		FirstName:        row.FirstName,
		LastName:         row.LastName,
		PersonalEmail:    row.PersonalEmail,
		Phone:            row.Phone,
		CurrentCompany:   row.CurrentCompany,
		CurrentJobTitle:  row.CurrentJobTitle,
		RelationshipType: row.RelationshipType,
		LastSyncAt:       row.LastSyncAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// CountCandidates returns the number of candidates for an organization.
func (s *SQLite) CountCandidates(ctx context.Context, organizationID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&candidateRow{}).Where("organization_id = ?", organizationID).Count(&n).Error
	return n, err
}

// ListActivities returns the audit entries of one candidate, oldest first.
func (s *SQLite) ListActivities(ctx context.Context, candidateID string) ([]models.Activity, error) {
	var rows []activityRow
	if err := s.db.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Activity, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Activity{
			ID:           r.ID,
			CandidateID:  r.CandidateID,
			ActivityType: r.ActivityType,
			Description:  r.Description,
			PerformedBy:  r.PerformedBy,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// StartRun records a new running sync.
func (s *SQLite) StartRun(ctx context.Context, r models.SyncRun) error {
	row := toRunRow(r)
	return s.db.WithContext(ctx).Create(&row).Error
}

// FinishRun stores the outcome of a sync run.
func (s *SQLite) FinishRun(ctx context.Context, r models.SyncRun) error {
	return s.db.WithContext(ctx).Model(&runRow{}).Where("id = ?", r.ID).Updates(map[string]any{
		"status":      r.Status,
		"succeeded":   r.Succeeded,
		"failed":      r.Failed,
		"skipped":     r.Skipped,
		"pages":       r.Pages,
		"cursor":      r.Cursor,
		"error":       r.Error,
		"finished_at": r.FinishedAt,
	}).Error
}

// LatestRun returns the most recent run for an organization, or nil.
func (s *SQLite) LatestRun(ctx context.Context, organizationID string) (*models.SyncRun, error) {
	runs, err := s.ListRuns(ctx, organizationID, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// ListRuns returns recent runs for an organization, newest first.
func (s *SQLite) ListRuns(ctx context.Context, organizationID string, limit int) ([]models.SyncRun, error) {
	var rows []runRow
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.SyncRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SyncRun{
			ID:             r.ID,
			OrganizationID: r.OrganizationID,
			Status:         r.Status,
			Succeeded:      r.Succeeded,
			Failed:         r.Failed,
			Skipped:        r.Skipped,
			Pages:          r.Pages,
			Cursor:         r.Cursor,
			Error:          r.Error,
			StartedAt:      r.StartedAt,
			FinishedAt:     r.FinishedAt,
		})
	}
	return out, nil
}

// Ping checks the underlying connection.
func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRunRow(r models.SyncRun) runRow {
	return runRow{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Status:         r.Status,
		Succeeded:      r.Succeeded,
		Failed:         r.Failed,
		Skipped:        r.Skipped,
		Pages:          r.Pages,
		Cursor:         r.Cursor,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}
