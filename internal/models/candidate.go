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

// Package models defines the canonical records persisted by the sync service.
package models

import "time"

// RelationshipCandidate is the relationship type of every record created by
// the HubSpot pipeline.
const RelationshipCandidate = "candidate"

// Activity types written to the activity log.
const (
	ActivityHubSpotSync = "hubspot_sync"

	HubSpotSyncDescription = "Contact synchronized from HubSpot"
)

// Candidate is one row of the candidates table. HubSpotID is the conflict
// key: there is exactly one candidate per HubSpot contact id.
type Candidate struct {
	OrganizationID   string    `json:"organization_id"`
	HubSpotID        string    `json:"hubspot_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	PersonalEmail    *string   `json:"personal_email"`
	Phone            *string   `json:"phone"`
	CurrentCompany   *string   `json:"current_company"`
	CurrentJobTitle  *string   `json:"current_job_title"`
	RelationshipType string    `json:"relationship_type"`
	LastSyncAt       time.Time `json:"last_sync_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Activity is an append-only audit entry.
type Activity struct {
	ID int64 `json:"id,omitempty"`
	// CandidateID holds the HubSpot contact id, not a local primary key.
	// The external id is the candidate identifier shared by every table
	// this pipeline writes.
	CandidateID  string    `json:"candidate_id"`
	ActivityType string    `json:"activity_type"`
	Description  string    `json:"description"`
	PerformedBy  string    `json:"performed_by"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// NewSyncActivity builds the audit entry written after a successful upsert.
func NewSyncActivity(hubspotID, organizationID string) Activity {
	return Activity{
		CandidateID:  hubspotID,
		ActivityType: ActivityHubSpotSync,
		Description:  HubSpotSyncDescription,
		PerformedBy:  organizationID,
	}
}
