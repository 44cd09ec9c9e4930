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

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bcem/crmsync/internal/hubspot"
	"github.com/bcem/crmsync/internal/models"
	"github.com/bcem/crmsync/internal/store"
)

func newTestExecutor(src ContactSource, st *memStore) *Executor {
	return NewExecutor(Config{
		Source:     src,
		Candidates: st,
		Activities: st,
		Runs:       st,
	})
}

func TestRun_Example(t *testing.T) {
	var c hubspot.Contact
	require.NoError(t, json.Unmarshal([]byte(
		`{"id":"42","properties":{"firstname":{"value":"Ada"},"lastname":{"value":"Lovelace"},"email":{"value":"ada@x.com"}}}`,
	), &c))

	st := newMemStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := NewExecutor(Config{
		Source:     singlePage(c),
		Candidates: st,
		Activities: st,
		Now:        func() time.Time { return fixed },
	})

	res, err := exec.Run(context.Background(), Request{OrganizationID: "org_1"})
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, res.Status)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, res.Errors)

	got := st.candidates["42"]
	assert.Equal(t, "org_1", got.OrganizationID)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "Lovelace", got.LastName)
	require.NotNil(t, got.PersonalEmail)
	assert.Equal(t, "ada@x.com", *got.PersonalEmail)
	assert.Nil(t, got.Phone)
	assert.Nil(t, got.CurrentCompany)
	assert.Nil(t, got.CurrentJobTitle)
	assert.Equal(t, models.RelationshipCandidate, got.RelationshipType)
	assert.Equal(t, fixed, got.LastSyncAt)

	require.Len(t, st.activities, 1)
	assert.Equal(t, models.NewSyncActivity("42", "org_1"), st.activities[0])
}

func TestRun_MissingOrganization(t *testing.T) {
	for _, org := range []string{"", "   "} {
		src := singlePage(contact("1", "A"))
		st := newMemStore()

		res, err := newTestExecutor(src, st).Run(context.Background(), Request{OrganizationID: org})

		assert.ErrorIs(t, err, ErrMissingOrganization)
		assert.Nil(t, res)
		assert.Empty(t, src.calls(), "source must not be read")
		assert.Zero(t, st.writes(), "nothing may be written")
		assert.Empty(t, st.runs, "no run recorded")
	}
}

func TestRun_PartialFailureDoesNotPropagate(t *testing.T) {
	st := newMemStore()
	st.failUpsert = map[string]error{"2": errors.New("duplicate key value violates constraint")}

	res, err := newTestExecutor(singlePage(contact("1", "A"), contact("2", "B"), contact("3", "C")), st).
		Run(context.Background(), Request{OrganizationID: "org_1"})

	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, res.Status)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "2", res.Errors[0].HubSpotID)
	assert.NotContains(t, res.Errors[0].Message, "duplicate key", "driver errors stay in the logs")

	assert.Contains(t, st.candidates, "1")
	assert.Contains(t, st.candidates, "3")
	assert.NotContains(t, st.candidates, "2")

	require.Len(t, st.activities, 2)
	for _, a := range st.activities {
		assert.NotEqual(t, "2", a.CandidateID, "no activity for the failed contact")
	}
}

func TestRun_SkipsContactsWithoutID(t *testing.T) {
	st := newMemStore()

	res, err := newTestExecutor(singlePage(contact("", "Ghost"), contact("1", "A")), st).
		Run(context.Background(), Request{OrganizationID: "org_1"})

	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, res.Status)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, st.candidates, 1)
	assert.Equal(t, 1, st.upserts)
}

func TestRun_ActivityFailureStillSucceeds(t *testing.T) {
	st := newMemStore()
	st.failAppend = map[string]error{"1": errors.New("insert failed")}

	res, err := newTestExecutor(singlePage(contact("1", "A")), st).
		Run(context.Background(), Request{OrganizationID: "org_1"})

	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, res.Status)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.ActivityErrors)
	assert.Contains(t, st.candidates, "1")
}

func TestRun_WritesAreBounded(t *testing.T) {
	st := newMemStore()

	_, err := newTestExecutor(singlePage(contact("1", "A")), st).
		Run(context.Background(), Request{OrganizationID: "org_1"})

	require.NoError(t, err)
	assert.True(t, st.hadDeadline, "upsert context must carry a deadline")
}

func TestRun_Pagination(t *testing.T) {
	src := &fakeSource{pages: map[string]*hubspot.Page{
		"":   {Contacts: []hubspot.Contact{contact("1", "A"), contact("2", "B")}, NextAfter: "p2"},
		"p2": {Contacts: []hubspot.Contact{contact("3", "C")}, NextAfter: "p3"},
		"p3": {Contacts: []hubspot.Contact{}},
	}}
	st := newMemStore()

	res, err := newTestExecutor(src, st).Run(context.Background(), Request{OrganizationID: "org_1"})

	require.NoError(t, err)
	assert.Equal(t, []string{"", "p2", "p3"}, src.calls())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.Succeeded)
	assert.Empty(t, res.Cursor)
}

func TestRun_UpstreamErrorStopsRun(t *testing.T) {
	cause := &hubspot.StatusError{StatusCode: 502, Body: "bad gateway"}
	src := &fakeSource{
		pages: map[string]*hubspot.Page{
			"": {Contacts: []hubspot.Contact{contact("1", "A")}, NextAfter: "p2"},
		},
		errs: map[string]error{"p2": cause},
	}
	st := newMemStore()

	res, err := newTestExecutor(src, st).Run(context.Background(), Request{OrganizationID: "org_1"})

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "p2", upErr.Cursor)
	assert.ErrorIs(t, err, cause)

	require.NotNil(t, res)
	assert.Equal(t, models.RunFailed, res.Status)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, "p2", res.Cursor)

	run := st.runs[res.RunID]
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, "p2", run.Cursor)
	assert.NotEmpty(t, run.Error)
	assert.True(t, run.Resumable())
	require.NotNil(t, run.FinishedAt)
}

func TestRun_ResumeFromFailedRun(t *testing.T) {
	src := &fakeSource{pages: map[string]*hubspot.Page{
		"p2": {Contacts: []hubspot.Contact{contact("3", "C")}},
	}}
	st := newMemStore()
	require.NoError(t, st.StartRun(context.Background(), models.SyncRun{
		ID: "old", OrganizationID: "org_1", Status: models.RunFailed, Cursor: "p2",
	}))

	res, err := newTestExecutor(src, st).Run(context.Background(), Request{OrganizationID: "org_1", Resume: true})

	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, src.calls())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, models.RunSucceeded, st.runs[res.RunID].Status)
}

func TestRun_ResumeAfterSuccessStartsOver(t *testing.T) {
	src := singlePage(contact("1", "A"))
	st := newMemStore()
	require.NoError(t, st.StartRun(context.Background(), models.SyncRun{
		ID: "old", OrganizationID: "org_1", Status: models.RunSucceeded,
	}))

	_, err := newTestExecutor(src, st).Run(context.Background(), Request{OrganizationID: "org_1", Resume: true})

	require.NoError(t, err)
	assert.Equal(t, []string{""}, src.calls())
}

func TestRun_ResumeWithRunLogErrorStartsOver(t *testing.T) {
	src := singlePage(contact("1", "A"))
	st := newMemStore()
	st.latestErr = errors.New("db down")

	_, err := newTestExecutor(src, st).Run(context.Background(), Request{OrganizationID: "org_1", Resume: true})

	require.NoError(t, err)
	assert.Equal(t, []string{""}, src.calls())
}

func TestRun_CancelledMidPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := newMemStore()
	src := &cancellingSource{cancel: cancel, page: &hubspot.Page{
		Contacts: []hubspot.Contact{contact("1", "A"), contact("2", "B")},
	}}

	res, err := newTestExecutor(src, st).Run(ctx, Request{OrganizationID: "org_1"})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, models.RunFailed, res.Status)
	assert.Zero(t, st.upserts)
	assert.Equal(t, models.RunFailed, st.runs[res.RunID].Status, "run outcome recorded despite cancellation")
}

// cancellingSource cancels the run's context as soon as the page is served.
type cancellingSource struct {
	cancel context.CancelFunc
	page   *hubspot.Page
}

func (s *cancellingSource) ListContacts(context.Context, string) (*hubspot.Page, error) {
	s.cancel()
	return s.page, nil
}

func TestRun_ExclusiveLock(t *testing.T) {
	locker := &fakeLocker{held: true}
	src := singlePage(contact("1", "A"))
	st := newMemStore()
	exec := NewExecutor(Config{Source: src, Candidates: st, Activities: st, Locker: locker})

	_, err := exec.Run(context.Background(), Request{OrganizationID: "org_1"})
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Empty(t, src.calls())

	locker.held = false
	_, err = exec.Run(context.Background(), Request{OrganizationID: "org_1"})
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	assert.False(t, locker.held)
}

func TestRun_LockError(t *testing.T) {
	locker := &fakeLocker{err: errors.New("redis down")}
	st := newMemStore()
	exec := NewExecutor(Config{Source: singlePage(), Candidates: st, Activities: st, Locker: locker})

	_, err := exec.Run(context.Background(), Request{OrganizationID: "org_1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSyncInProgress)
}

func TestRun_PublishesCompletion(t *testing.T) {
	pub := &fakePublisher{}
	st := newMemStore()
	st.failUpsert = map[string]error{"2": errors.New("boom")}
	exec := NewExecutor(Config{
		Source:     singlePage(contact("1", "A"), contact("2", "B")),
		Candidates: st,
		Activities: st,
		Publisher:  pub,
	})

	res, err := exec.Run(context.Background(), Request{OrganizationID: "org_1"})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	e := pub.events[0]
	assert.Equal(t, "sync.completed", e.Type)
	assert.Equal(t, res.RunID, e.Run.ID)
	assert.Equal(t, models.RunPartial, e.Run.Status)
	assert.Equal(t, 1, e.Run.Failed)
}

func TestRun_ConcurrentOrganizationsAreIndependent(t *testing.T) {
	st := newMemStore()
	exec := NewExecutor(Config{
		Source:     singlePage(contact("1", "A"), contact("2", "B")),
		Candidates: st,
		Activities: st,
		Runs:       st,
	})

	var wg sync.WaitGroup
	for _, org := range []string{"org_a", "org_b", "org_c"} {
		wg.Add(1)
		go func(org string) {
			defer wg.Done()
			res, err := exec.Run(context.Background(), Request{OrganizationID: org})
			assert.NoError(t, err)
			assert.Equal(t, 2, res.Succeeded)
		}(org)
	}
	wg.Wait()

	assert.Len(t, st.runs, 3)
}

// TestRun_IdempotentAgainstSQLite runs the same contacts twice through a
// real store: one row per contact, timestamps move forward, activities
// accumulate.
func TestRun_IdempotentAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "sync.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	first := hubspot.Contact{ID: "42", Properties: map[string]hubspot.Property{
		hubspot.PropFirstName: {Value: strPtr("Ada")},
		hubspot.PropEmail:     {Value: strPtr("ada@x.com")},
	}}
	exec := NewExecutor(Config{Source: singlePage(first), Candidates: db, Activities: db, Runs: db, Now: now})
	_, err = exec.Run(ctx, Request{OrganizationID: "org_1"})
	require.NoError(t, err)

	t1 := clock
	clock = clock.Add(time.Hour)

	second := hubspot.Contact{ID: "42", Properties: map[string]hubspot.Property{
		hubspot.PropFirstName: {Value: strPtr("Augusta")},
	}}
	exec = NewExecutor(Config{Source: singlePage(second), Candidates: db, Activities: db, Runs: db, Now: now})
	_, err = exec.Run(ctx, Request{OrganizationID: "org_1"})
	require.NoError(t, err)

	n, err := db.CountCandidates(ctx, "org_1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.GetCandidate(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Augusta", got.FirstName)
	assert.Nil(t, got.PersonalEmail)
	assert.True(t, got.LastSyncAt.After(t1))
	assert.True(t, got.UpdatedAt.After(t1))

	acts, err := db.ListActivities(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, acts, 2)

	runs, err := db.ListRuns(ctx, "org_1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunSucceeded, runs[0].Status)
}

func TestRun_Telemetry(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	st := newMemStore()
	src := &fakeSource{
		pages: map[string]*hubspot.Page{"": {Contacts: []hubspot.Contact{contact("1", "A")}, NextAfter: "p2"}},
		errs:  map[string]error{"p2": errors.New("timeout")},
	}
	exec := NewExecutor(Config{
		Source:         src,
		Candidates:     st,
		Activities:     st,
		TracerProvider: tp,
		MeterProvider:  mp,
	})

	_, err := exec.Run(context.Background(), Request{OrganizationID: "org_1"})
	require.Error(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "hubspot.sync", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.EqualValues(t, 1, sums["crmsync.sync.runs"])
	assert.EqualValues(t, 1, sums["crmsync.sync.contacts"])
}
