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

package hubspot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Contact property names read by the candidate mapping.
const (
	PropFirstName = "firstname"
	PropLastName  = "lastname"
	PropEmail     = "email"
	PropPhone     = "phone"
	PropCompany   = "company"
	PropJobTitle  = "jobtitle"
)

// ContactProperties is the property list requested from the contacts API.
var ContactProperties = []string{
	PropFirstName,
	PropLastName,
	PropEmail,
	PropPhone,
	PropCompany,
	PropJobTitle,
}

// Property wraps a single contact property value. A nil Value means the
// property was absent or null.
type Property struct {
	Value *string
}

// UnmarshalJSON accepts the legacy wrapper shape ({"value": "Ada"}) as well
// as the flat CRM v3 shape ("Ada"). Non-string scalars keep their literal
// text.
func (p *Property) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		p.Value = nil
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode property string: %w", err)
		}
		p.Value = &s
	case '{':
		var wrapper struct {
			Value *Property `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return fmt.Errorf("decode property wrapper: %w", err)
		}
		p.Value = nil
		if wrapper.Value != nil {
			p.Value = wrapper.Value.Value
		}
	case '[':
		return fmt.Errorf("unsupported property value %s", data)
	default:
		s := string(data)
		p.Value = &s
	}
	return nil
}

// MarshalJSON writes the flat CRM v3 shape.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value)
}

// Contact is a HubSpot contact record as returned by the CRM API.
type Contact struct {
	ID         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
	Archived   bool                `json:"archived,omitempty"`
}

// Value returns the value of a property and whether it was present.
func (c Contact) Value(name string) (string, bool) {
	p, ok := c.Properties[name]
	if !ok || p.Value == nil {
		return "", false
	}
	return *p.Value, true
}

// Page is one page of the contacts list. NextAfter is empty on the last page.
type Page struct {
	Contacts  []Contact
	NextAfter string
}

// listResponse mirrors GET /crm/v3/objects/contacts.
type listResponse struct {
	Results []Contact `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
			Link  string `json:"link"`
		} `json:"next"`
	} `json:"paging"`
}

// parseContactsPage converts a contacts list response into a Page.
func parseContactsPage(body io.Reader) (*Page, error) {
	var resp listResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode contacts page: %w", err)
	}

	page := &Page{Contacts: resp.Results}
	if page.Contacts == nil {
		page.Contacts = []Contact{}
	}
	if resp.Paging != nil && resp.Paging.Next != nil {
		page.NextAfter = resp.Paging.Next.After
	}
	return page, nil
}
