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
	"errors"
	"sync"

	"github.com/bcem/crmsync/internal/events"
	"github.com/bcem/crmsync/internal/hubspot"
	"github.com/bcem/crmsync/internal/models"
)

// fakeSource serves pages keyed by their "after" token.
type fakeSource struct {
	mu     sync.Mutex
	pages  map[string]*hubspot.Page
	errs   map[string]error
	afters []string
}

func (f *fakeSource) ListContacts(_ context.Context, after string) (*hubspot.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afters = append(f.afters, after)
	if err := f.errs[after]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[after]; ok {
		return p, nil
	}
	return nil, errors.New("unknown cursor " + after)
}

func (f *fakeSource) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.afters...)
}

// memStore is an in-memory candidate store, activity log and run log.
type memStore struct {
	mu          sync.Mutex
	candidates  map[string]models.Candidate
	activities  []models.Activity
	upserts     int
	failUpsert  map[string]error
	failAppend  map[string]error
	hadDeadline bool

	runs      map[string]models.SyncRun
	runOrder  []string
	latestErr error
}

func newMemStore() *memStore {
	return &memStore{
		candidates: make(map[string]models.Candidate),
		runs:       make(map[string]models.SyncRun),
	}
}

func (m *memStore) UpsertCandidate(ctx context.Context, c models.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if _, ok := ctx.Deadline(); ok {
		m.hadDeadline = true
	}
	if err := m.failUpsert[c.HubSpotID]; err != nil {
		return err
	}
	m.candidates[c.HubSpotID] = c
	return nil
}

func (m *memStore) AppendActivity(_ context.Context, a models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failAppend[a.CandidateID]; err != nil {
		return err
	}
	m.activities = append(m.activities, a)
	return nil
}

func (m *memStore) StartRun(_ context.Context, r models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	m.runOrder = append(m.runOrder, r.ID)
	return nil
}

func (m *memStore) FinishRun(_ context.Context, r models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *memStore) LatestRun(_ context.Context, organizationID string) (*models.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		r := m.runs[m.runOrder[i]]
		if r.OrganizationID == organizationID {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts + len(m.activities)
}

// fakeLocker grants or refuses the lock and counts releases.
type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
}

func (l *fakeLocker) TryAcquire(context.Context, string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
		return nil
	}, true, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func strPtr(s string) *string { return &s }

func contact(id, first string) hubspot.Contact {
	return hubspot.Contact{
		ID:         id,
		Properties: map[string]hubspot.Property{hubspot.PropFirstName: {Value: strPtr(first)}},
	}
}

func singlePage(contacts ...hubspot.Contact) *fakeSource {
	return &fakeSource{pages: map[string]*hubspot.Page{"": {Contacts: contacts}}}
}
