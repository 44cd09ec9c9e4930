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
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bcem/crmsync/internal/auth"
	"github.com/bcem/crmsync/internal/executor"
	"github.com/bcem/crmsync/internal/syncer"
)

// Messages returned by the executor endpoint. Upstream and storage causes
// are logged, never echoed.
const (
	msgMissingOrganization = "Organization ID is required"
	msgInvalidBody         = "Invalid request body"
	msgInProgress          = "Sync already in progress"
	msgUpstream            = "Failed to fetch contacts from HubSpot"
	msgSyncFailed          = "Sync failed"

	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	maxBodyBytes     = 1 << 20
)

// cors applies the permissive CORS policy of the executor endpoint.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// executorHandler serves POST /functions/v1/sync-hubspot.
type executorHandler struct {
	runner syncer.Runner
	keys   []string
}

func (h *executorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	if !h.authorized(auth.TokenFromRequest(r)) {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req syncer.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgInvalidBody)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			slog.Info("executor request body is not valid JSON", "request_id", reqID, "error", err)
			writeError(w, http.StatusInternalServerError, msgInvalidBody)
			return
		}
	}

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		status, msg := executorError(err)
		slog.Error("executor run failed",
			"request_id", reqID,
			"organization", req.OrganizationID,
			"status", status,
			"error", err,
		)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, executor.Envelope{Message: msgSyncComplete, Result: res})
}

// authorized accepts any configured key. With no keys configured every
// request is refused.
func (h *executorHandler) authorized(token string) bool {
	if token == "" {
		return false
	}
	ok := false
	for _, k := range h.keys {
		if k != "" && subtle.ConstantTimeCompare([]byte(token), []byte(k)) == 1 {
			ok = true
		}
	}
	return ok
}

// executorError maps a run error to a status and a caller-safe message.
func executorError(err error) (int, string) {
	var upErr *syncer.UpstreamError
	switch {
	case errors.Is(err, syncer.ErrMissingOrganization):
		return http.StatusInternalServerError, msgMissingOrganization
	case errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict, msgInProgress
	case errors.As(err, &upErr):
		return http.StatusInternalServerError, msgUpstream
	default:
		return http.StatusInternalServerError, msgSyncFailed
	}
}
