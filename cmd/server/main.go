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

// CRM Sync Service
//
// Entry point for the HubSpot contact sync service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to the candidate store, and Redis or NATS when configured
//  3. Builds the sync executor, or a client for a remote one
//  4. Serves the trigger, executor and health endpoints
//  5. Runs the optional scheduled sync
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/bcem/crmsync/internal/api"
	"github.com/bcem/crmsync/internal/app"
	"github.com/bcem/crmsync/internal/auth"
	"github.com/bcem/crmsync/internal/config"
	"github.com/bcem/crmsync/internal/executor"
	"github.com/bcem/crmsync/internal/syncer"
	"github.com/bcem/crmsync/internal/tenant"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting crm sync service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"store", cfg.Store.Driver,
		"events", cfg.Events.Broker,
		"tenant_resolver", cfg.TenantResolver,
		"exclusive", cfg.Exclusive,
		"remote_executor", cfg.RemoteExecutor(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Session verification ---
	if cfg.Supabase.JWTSecret == "" {
		slog.Warn("SUPABASE_JWT_SECRET is not set, every trigger request will be refused")
	}
	verifier := auth.NewVerifier(cfg.Supabase.JWTSecret)

	resolver, err := tenant.New(cfg.TenantResolver, cfg.TenantClaim)
	if err != nil {
		slog.Error("failed to build tenant resolver", "error", err)
		os.Exit(1)
	}

	opts := api.Options{
		Verifier: verifier,
		Resolver: resolver,
		APIKeys:  []string{cfg.Supabase.AnonKey, cfg.Supabase.ServiceRoleKey},
	}

	// --- Executor ---
	var (
		a         *app.App
		scheduler *syncer.Scheduler
	)
	if cfg.RemoteExecutor() {
		key := cfg.Supabase.AnonKey
		if key == "" {
			key = cfg.Supabase.ServiceRoleKey
		}
		opts.Trigger = executor.NewClient(nil, cfg.ExecutorURL, key)
		slog.Info("forwarding syncs to remote executor", "url", cfg.ExecutorURL)
	} else {
		a, err = app.New(ctx, cfg)
		if err != nil {
			slog.Error("failed to initialise sync executor", "error", err)
			os.Exit(1)
		}
		opts.Trigger = a.Executor
		opts.Executor = a.Executor
		opts.Health = a.HealthChecks()

		scheduler = syncer.NewScheduler(a.Executor, cfg.ScheduleInterval, cfg.ScheduleOrganizations)
	}

	// --- HTTP Server ---
	ready, err := api.Serve(ctx, cfg.Port, api.NewRouter(opts))
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	if scheduler != nil {
		scheduler.Start(ctx)
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()

	if a != nil {
		a.Close()
	}

	slog.Info("crm sync service stopped")
}
