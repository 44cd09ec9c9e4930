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

// Package syncer copies HubSpot contacts into the candidates table for one
// organization. Contacts are read a page at a time and written strictly
// sequentially; a failed write is recorded and skipped, a failed page read
// stops the run with a cursor that a later run can resume from.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bcem/crmsync/internal/events"
	"github.com/bcem/crmsync/internal/hubspot"
	"github.com/bcem/crmsync/internal/mapping"
	"github.com/bcem/crmsync/internal/models"
)

const (
	// DefaultWriteTimeout bounds every single store write.
	DefaultWriteTimeout = 10 * time.Second

	// itemFailureMessage is what callers see for a failed contact write. The
	// driver error is logged, not returned.
	itemFailureMessage = "failed to upsert candidate"

	finishTimeout = 5 * time.Second
)

var (
	// ErrMissingOrganization is returned when the request carries no
	// organization id. Nothing is written.
	ErrMissingOrganization = errors.New("organization id is required")

	// ErrSyncInProgress is returned when exclusive runs are enabled and
	// another run holds the organization's lock.
	ErrSyncInProgress = errors.New("sync already in progress for organization")
)

// UpstreamError wraps a failure to read a page of contacts. The run stops;
// Cursor is the "after" token of the page that could not be read.
type UpstreamError struct {
	Cursor string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fetch contacts page: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Request asks for one organization to be synchronised.
type Request struct {
	OrganizationID string `json:"organizationId"`
	// Resume continues from the cursor of the organization's last failed run.
	Resume bool `json:"resume,omitempty"`
}

// ItemError describes one contact that could not be written.
type ItemError struct {
	HubSpotID string `json:"hubspot_id"`
	Message   string `json:"message"`
}

// Result is the aggregate outcome of a run.
type Result struct {
	RunID          string      `json:"run_id"`
	OrganizationID string      `json:"organization_id"`
	Status         string      `json:"status"`
	Succeeded      int         `json:"succeeded"`
	Failed         int         `json:"failed"`
	Skipped        int         `json:"skipped"`
	ActivityErrors int         `json:"activity_errors"`
	Pages          int         `json:"pages"`
	Cursor         string      `json:"cursor,omitempty"`
	Errors         []ItemError `json:"errors,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// Runner runs a sync. The in-process Executor and the remote executor client
// both implement it.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// ContactSource yields contacts one page at a time. An empty after starts
// from the beginning; an empty Page.NextAfter marks the last page.
type ContactSource interface {
	ListContacts(ctx context.Context, after string) (*hubspot.Page, error)
}

// CandidateStore upserts candidates keyed by HubSpot id.
type CandidateStore interface {
	UpsertCandidate(ctx context.Context, c models.Candidate) error
}

// ActivityLog appends audit entries.
type ActivityLog interface {
	AppendActivity(ctx context.Context, a models.Activity) error
}

// RunLog records sync runs.
type RunLog interface {
	StartRun(ctx context.Context, r models.SyncRun) error
	FinishRun(ctx context.Context, r models.SyncRun) error
	LatestRun(ctx context.Context, organizationID string) (*models.SyncRun, error)
}

// Locker serialises runs per organization.
type Locker interface {
	TryAcquire(ctx context.Context, organizationID string) (release func(context.Context) error, ok bool, err error)
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Config holds the executor's collaborators. Source, Candidates and
// Activities are required; the rest are optional.
type Config struct {
	Source     ContactSource
	Candidates CandidateStore
	Activities ActivityLog
	Runs       RunLog
	Locker     Locker
	Publisher  Publisher

	WriteTimeout time.Duration
	Mapper       mapping.Mapper
	Now          func() time.Time

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Executor is the in-process Runner.
type Executor struct {
	source       ContactSource
	candidates   CandidateStore
	activities   ActivityLog
	runs         RunLog
	locker       Locker
	publisher    Publisher
	writeTimeout time.Duration
	mapper       mapping.Mapper
	now          func() time.Time
	telemetry    *telemetry
}

var _ Runner = (*Executor)(nil)

// NewExecutor creates an executor from its collaborators.
func NewExecutor(cfg Config) *Executor {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	mapper := cfg.Mapper
	if mapper.Now == nil {
		mapper.Now = now
	}
	return &Executor{
		source:       cfg.Source,
		candidates:   cfg.Candidates,
		activities:   cfg.Activities,
		runs:         cfg.Runs,
		locker:       cfg.Locker,
		publisher:    cfg.Publisher,
		writeTimeout: writeTimeout,
		mapper:       mapper,
		now:          now,
		telemetry:    newTelemetry(cfg.TracerProvider, cfg.MeterProvider),
	}
}

// Run synchronises every HubSpot contact into the organization's
// candidates. Per-contact write failures leave the run successful with
// status "partial"; only a missing organization, a held lock or a failed
// page read return an error. On a page read failure the partial Result is
// returned alongside the *UpstreamError.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		return nil, ErrMissingOrganization
	}

	if e.locker != nil {
		release, ok, err := e.locker.TryAcquire(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrSyncInProgress
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			if err := release(rctx); err != nil {
				slog.Warn("failed to release run lock", "organization", orgID, "error", err)
			}
		}()
	}

	after := e.resumeCursor(ctx, orgID, req.Resume)

	res := &Result{
		RunID:          uuid.NewString(),
		OrganizationID: orgID,
		Status:         models.RunRunning,
		Cursor:         after,
		StartedAt:      e.now().UTC(),
	}
	e.startRun(ctx, res)

	ctx, span := e.telemetry.startRun(ctx, orgID, req.Resume)

	slog.Info("starting hubspot sync",
		"organization", orgID,
		"run_id", res.RunID,
		"resume_from", after,
	)

	err := e.syncPages(ctx, orgID, after, res)

	res.FinishedAt = e.now().UTC()
	switch {
	case err != nil:
		res.Status = models.RunFailed
	case res.Failed > 0:
		res.Status = models.RunPartial
		res.Cursor = ""
	default:
		res.Status = models.RunSucceeded
		res.Cursor = ""
	}

	e.telemetry.endRun(ctx, span, res, err)
	e.finishRun(ctx, res, err)

	if err != nil {
		slog.Error("hubspot sync failed",
			"organization", orgID,
			"run_id", res.RunID,
			"succeeded", res.Succeeded,
			"failed", res.Failed,
			"cursor", res.Cursor,
			"error", err,
		)
		return res, err
	}

	slog.Info("hubspot sync complete",
		"organization", orgID,
		"run_id", res.RunID,
		"status", res.Status,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"pages", res.Pages,
	)
	return res, nil
}

// syncPages walks the contact pages starting at after. res.Cursor always
// holds the token of the page being processed, so a failure leaves it
// pointing at the first page not fully written.
func (e *Executor) syncPages(ctx context.Context, orgID, after string, res *Result) error {
	for {
		res.Cursor = after

		page, err := e.source.ListContacts(ctx, after)
		if err != nil {
			return &UpstreamError{Cursor: after, Err: err}
		}
		res.Pages++

		for _, contact := range page.Contacts {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("sync interrupted: %w", err)
			}
			e.syncContact(ctx, orgID, contact, res)
		}

		if page.NextAfter == "" {
			return nil
		}
		after = page.NextAfter
	}
}

// syncContact maps and writes one contact, recording the outcome in res.
func (e *Executor) syncContact(ctx context.Context, orgID string, contact hubspot.Contact, res *Result) {
	if contact.ID == "" {
		slog.Warn("skipping contact without id", "organization", orgID)
		res.Skipped++
		return
	}

	candidate := e.mapper.Map(contact, orgID)

	wctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	err := e.candidates.UpsertCandidate(wctx, candidate)
	cancel()
	if err != nil {
		slog.Error("failed to upsert candidate",
			"organization", orgID,
			"hubspot_id", contact.ID,
			"error", err,
		)
		res.Failed++
		res.Errors = append(res.Errors, ItemError{HubSpotID: contact.ID, Message: itemFailureMessage})
		return
	}

	wctx, cancel = context.WithTimeout(ctx, e.writeTimeout)
	err = e.activities.AppendActivity(wctx, models.NewSyncActivity(contact.ID, orgID))
	cancel()
	if err != nil {
		slog.Warn("failed to log sync activity",
			"organization", orgID,
			"hubspot_id", contact.ID,
			"error", err,
		)
		res.ActivityErrors++
	}

	res.Succeeded++
}

// resumeCursor returns the cursor of the last failed run when resuming.
func (e *Executor) resumeCursor(ctx context.Context, orgID string, resume bool) string {
	if !resume || e.runs == nil {
		return ""
	}
	last, err := e.runs.LatestRun(ctx, orgID)
	if err != nil {
		slog.Warn("cannot load last run, starting from the beginning", "organization", orgID, "error", err)
		return ""
	}
	if !last.Resumable() {
		return ""
	}
	return last.Cursor
}

func (e *Executor) startRun(ctx context.Context, res *Result) {
	if e.runs == nil {
		return
	}
	if err := e.runs.StartRun(ctx, toRun(res, nil)); err != nil {
		slog.Warn("failed to record run start", "run_id", res.RunID, "error", err)
	}
}

// finishRun stores the outcome and publishes the completion event. It runs
// on a detached context so a cancelled request still records its run.
func (e *Executor) finishRun(ctx context.Context, res *Result, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	run := toRun(res, runErr)
	if e.runs != nil {
		if err := e.runs.FinishRun(ctx, run); err != nil {
			slog.Warn("failed to record run outcome", "run_id", res.RunID, "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, events.NewSyncCompleted(run)); err != nil {
			slog.Warn("failed to publish sync event", "run_id", res.RunID, "error", err)
		}
	}
}

func toRun(res *Result, runErr error) models.SyncRun {
	run := models.SyncRun{
		ID:             res.RunID,
		OrganizationID: res.OrganizationID,
		Status:         res.Status,
		Succeeded:      res.Succeeded,
		Failed:         res.Failed,
		Skipped:        res.Skipped,
		Pages:          res.Pages,
		Cursor:         res.Cursor,
		StartedAt:      res.StartedAt,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if !res.FinishedAt.IsZero() {
		finished := res.FinishedAt
		run.FinishedAt = &finished
	}
	return run
}
