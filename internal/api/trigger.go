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

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bcem/crmsync/internal/auth"
	"github.com/bcem/crmsync/internal/executor"
	"github.com/bcem/crmsync/internal/syncer"
	"github.com/bcem/crmsync/internal/tenant"
)

const (
	msgUnauthorized = "Unauthorized"
	msgForbidden    = "Forbidden"
	msgTriggerFail  = "Failed to sync contacts"
	msgSyncComplete = "Sync completed successfully"
)

// envelopeRunner is a runner whose success body can be relayed unchanged,
// such as the remote executor client.
type envelopeRunner interface {
	Invoke(ctx context.Context, req syncer.Request) (*executor.Envelope, error)
}

// triggerHandler serves POST /api/hubspot. The body is ignored: the
// organization comes from the caller's session.
type triggerHandler struct {
	runner   syncer.Runner
	verifier *auth.Verifier
	resolver tenant.Resolver
}

func (h *triggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	if h.verifier == nil {
		slog.Error("trigger called without a session verifier", "request_id", reqID)
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	session, err := h.verifier.FromRequest(r)
	if err != nil {
		slog.Info("rejected sync trigger", "request_id", reqID, "reason", err)
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	ctx := auth.WithSession(r.Context(), session)
	orgID, err := h.resolver.Resolve(ctx, session)
	if err != nil {
		slog.Warn("cannot resolve organization", "request_id", reqID, "user", session.UserID, "error", err)
		writeError(w, http.StatusForbidden, msgForbidden)
		return
	}

	env, err := h.run(ctx, syncer.Request{OrganizationID: orgID})
	if err != nil {
		slog.Error("sync trigger failed",
			"request_id", reqID,
			"organization", orgID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, msgTriggerFail)
		return
	}

	writeJSON(w, http.StatusOK, env)
}

func (h *triggerHandler) run(ctx context.Context, req syncer.Request) (*executor.Envelope, error) {
	if inv, ok := h.runner.(envelopeRunner); ok {
		return inv.Invoke(ctx, req)
	}
	res, err := h.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &executor.Envelope{Message: msgSyncComplete, Result: res}, nil
}
