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
	"log/slog"
	"sync"
	"time"
)

// Scheduler periodically syncs a fixed set of organizations. Each tick
// resumes from the last failed run when there is one.
type Scheduler struct {
	runner        Runner
	interval      time.Duration
	organizations []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. It does nothing until Start.
func NewScheduler(runner Runner, interval time.Duration, organizations []string) *Scheduler {
	return &Scheduler{
		runner:        runner,
		interval:      interval,
		organizations: organizations,
	}
}

// Start launches the loop in the background. A non-positive interval or an
// empty organization list leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 || len(s.organizations) == 0 {
		slog.Info("scheduled sync disabled")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				slog.Info("scheduled sync stopping")
				return
			case <-ticker.C:
				s.tick(loopCtx)
			}
		}
	}()

	slog.Info("scheduled sync started",
		"interval", s.interval,
		"organizations", len(s.organizations),
	)
}

// tick runs one pass over every organization, sequentially.
func (s *Scheduler) tick(ctx context.Context) {
	for _, orgID := range s.organizations {
		if ctx.Err() != nil {
			return
		}
		_, err := s.runner.Run(ctx, Request{OrganizationID: orgID, Resume: true})
		switch {
		case err == nil:
		case errors.Is(err, ErrSyncInProgress):
			slog.Info("scheduled sync skipped, run in progress", "organization", orgID)
		default:
			slog.Error("scheduled sync failed", "organization", orgID, "error", err)
		}
	}
}

// Stop shuts down the loop and waits for an in-flight pass to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
