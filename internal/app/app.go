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

// Package app wires the in-process sync executor from configuration. It is
// shared by the HTTP service and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/crmsync/internal/config"
	"github.com/bcem/crmsync/internal/events"
	"github.com/bcem/crmsync/internal/hubspot"
	"github.com/bcem/crmsync/internal/lock"
	"github.com/bcem/crmsync/internal/store"
	"github.com/bcem/crmsync/internal/syncer"
)

// App holds the executor and the connections it owns.
type App struct {
	Store     store.Store
	Executor  *syncer.Executor
	Redis     *redis.Client
	Publisher events.Publisher
}

// New connects the store, optional Redis and event broker, and builds the
// executor.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Publisher: events.Nop{}}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open candidate store: %w", err)
	}
	a.Store = st
	slog.Info("candidate store ready", "driver", cfg.Store.Driver)

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opt)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("connected to Redis")
	}

	switch cfg.Events.Broker {
	case "redis":
		a.Publisher = events.NewRedisPublisher(a.Redis, cfg.Events.Queue)
	case "nats":
		url := cfg.Events.NATSURL
		if url == "" {
			url = nats.DefaultURL
		}
		pub, err := events.DialNATS(url, cfg.Events.Subject)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = pub
		slog.Info("connected to NATS", "subject", cfg.Events.Subject)
	}

	source := hubspot.NewClient(hubspot.ClientConfig{
		HTTPClient:        hubspot.NewHTTPClient(ctx, cfg.HubSpot),
		BaseURL:           cfg.HubSpot.BaseURL,
		PageSize:          cfg.HubSpot.PageSize,
		RequestsPerSecond: cfg.HubSpot.RequestsPerSecond,
	})

	var locker syncer.Locker
	if cfg.Exclusive {
		locker = lock.NewLocker(a.Redis, cfg.LockTTL)
	}

	a.Executor = syncer.NewExecutor(syncer.Config{
		Source:       source,
		Candidates:   st,
		Activities:   st,
		Runs:         st,
		Locker:       locker,
		Publisher:    a.Publisher,
		WriteTimeout: cfg.Store.WriteTimeout,
	})
	return a, nil
}

// HealthChecks returns a check per owned dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"store": a.Store.Ping,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases every connection. It is safe on a partially built App.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			slog.Warn("failed to close event publisher", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			slog.Warn("failed to close candidate store", "error", err)
		}
	}
}
