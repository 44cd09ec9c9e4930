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

// Package api serves the HTTP surface of the sync service: the
// authenticated trigger endpoint used by the dashboard, the executor
// endpoint it forwards to, and health checks.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bcem/crmsync/internal/auth"
	"github.com/bcem/crmsync/internal/syncer"
	"github.com/bcem/crmsync/internal/tenant"
)

const (
	// TriggerPath is called by the dashboard's sync button.
	TriggerPath = "/api/hubspot"

	// ExecutorPath runs a sync for the organization named in the body.
	ExecutorPath = "/functions/v1/sync-hubspot"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck = func(ctx context.Context) error

// Options wires the router's collaborators.
type Options struct {
	// Trigger runs syncs for the trigger endpoint: the in-process executor
	// or a remote executor client.
	Trigger syncer.Runner

	// Executor backs the executor endpoint. Nil leaves it unmounted, which
	// is the case when this process only forwards to a remote executor.
	Executor syncer.Runner

	Verifier *auth.Verifier
	Resolver tenant.Resolver

	// APIKeys are accepted as bearer tokens on the executor endpoint.
	APIKeys []string

	Health map[string]HealthCheck
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = tenant.IdentityResolver{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(opts.Health))

	trigger := &triggerHandler{runner: opts.Trigger, verifier: opts.Verifier, resolver: resolver}
	r.Post(TriggerPath, trigger.ServeHTTP)

	if opts.Executor != nil {
		exec := &executorHandler{runner: opts.Executor, keys: opts.APIKeys}
		r.Group(func(r chi.Router) {
			r.Use(cors)
			r.Options(ExecutorPath, preflight)
			r.Post(ExecutorPath, exec.ServeHTTP)
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", "dependency", name, "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": name + " unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections. The server shuts down when ctx is cancelled.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}
