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

package models

import "time"

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// SyncRun records one executor pass for an organization.
type SyncRun struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Status         string     `json:"status"`
	Succeeded      int        `json:"succeeded"`
	Failed         int        `json:"failed"`
	Skipped        int        `json:"skipped"`
	Pages          int        `json:"pages"`
	Cursor         string     `json:"cursor,omitempty"` // HubSpot "after" token of the first unfetched page
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Resumable reports whether a later run can continue where this one stopped.
func (r *SyncRun) Resumable() bool {
	return r != nil && r.Status == RunFailed && r.Cursor != ""
}
