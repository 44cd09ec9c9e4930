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

// Package tenant maps an authenticated session to the organization whose
// candidates it may sync.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bcem/crmsync/internal/auth"
)

// DefaultClaim is where the claim resolver looks when none is configured.
const DefaultClaim = "app_metadata.organization_id"

// ErrNoOrganization means the session does not name an organization.
var ErrNoOrganization = errors.New("session has no organization")

// Resolver returns the organization id for a session.
type Resolver interface {
	Resolve(ctx context.Context, s *auth.Session) (string, error)
}

// IdentityResolver treats the user as their own organization.
type IdentityResolver struct{}

func (IdentityResolver) Resolve(_ context.Context, s *auth.Session) (string, error) {
	if s == nil || s.UserID == "" {
		return "", ErrNoOrganization
	}
	return s.UserID, nil
}

// ClaimResolver reads the organization id from a dotted claim path such as
// "app_metadata.organization_id".
type ClaimResolver struct {
	path []string
}

// NewClaimResolver creates a resolver for the given claim path.
func NewClaimResolver(claim string) *ClaimResolver {
	if strings.TrimSpace(claim) == "" {
		claim = DefaultClaim
	}
	return &ClaimResolver{path: strings.Split(claim, ".")}
}

func (r *ClaimResolver) Resolve(_ context.Context, s *auth.Session) (string, error) {
	if s == nil {
		return "", ErrNoOrganization
	}

	var cur any = map[string]any(s.Claims)
	for _, key := range r.path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: claim %q", ErrNoOrganization, strings.Join(r.path, "."))
		}
		cur = obj[key]
	}

	id, ok := cur.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: claim %q", ErrNoOrganization, strings.Join(r.path, "."))
	}
	return id, nil
}

// New returns the resolver named by kind ("identity" or "claim").
func New(kind, claim string) (Resolver, error) {
	switch kind {
	case "", "identity":
		return IdentityResolver{}, nil
	case "claim":
		return NewClaimResolver(claim), nil
	default:
		return nil, fmt.Errorf("unknown tenant resolver %q", kind)
	}
}
