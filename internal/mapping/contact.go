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

// Package mapping translates HubSpot contacts into candidate records.
package mapping

import (
	"time"

	"github.com/bcem/crmsync/internal/hubspot"
	"github.com/bcem/crmsync/internal/models"
)

// Mapper converts contacts into candidates. The zero value uses time.Now.
type Mapper struct {
	Now func() time.Time
}

// MapContact maps a contact with the wall clock.
func MapContact(contact hubspot.Contact, organizationID string) models.Candidate {
	return Mapper{}.Map(contact, organizationID)
}

// Map converts one contact. It never fails: absent names become "", absent
// optional fields stay nil, and present values pass through unmodified.
func (m Mapper) Map(contact hubspot.Contact, organizationID string) models.Candidate {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	syncedAt := now().UTC()

	first, _ := contact.Value(hubspot.PropFirstName)
	last, _ := contact.Value(hubspot.PropLastName)

	return models.Candidate{
		OrganizationID:   organizationID,
		HubSpotID:        contact.ID,
		FirstName:        first,
		LastName:         last,
		PersonalEmail:    optional(contact, hubspot.PropEmail),
		Phone:            optional(contact, hubspot.PropPhone),
		CurrentCompany:   optional(contact, hubspot.PropCompany),
		CurrentJobTitle:  optional(contact, hubspot.PropJobTitle),
		RelationshipType: models.RelationshipCandidate,
		LastSyncAt:       syncedAt,
		UpdatedAt:        syncedAt,
	}
}

func optional(contact hubspot.Contact, name string) *string {
	v, ok := contact.Value(name)
	if !ok {
		return nil
	}
	return &v
}
