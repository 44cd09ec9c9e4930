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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HubSpotConfig holds the CRM source connection settings.
type HubSpotConfig struct {
	BaseURL           string
	AccessToken       string
	RefreshToken      string // optional, enables the OAuth refresh flow
	ClientID          string
	ClientSecret      string
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// SupabaseConfig holds the storage service settings. Only the key names
// matter to this service: the anon and service-role keys authorise calls to
// the executor endpoint, the JWT secret verifies user sessions.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	AnonKey        string
	JWTSecret      string
}

// StoreConfig selects the candidate store backend.
type StoreConfig struct {
	Driver       string // "postgres" or "sqlite"
	DSN          string
	WriteTimeout time.Duration
}

// EventsConfig selects where sync.completed events go.
type EventsConfig struct {
	Broker  string // "", "redis" or "nats"
	Queue   string // redis list name
	NATSURL string
	Subject string
}

// Config holds all configuration for the sync service.
type Config struct {
	HubSpot  HubSpotConfig
	Supabase SupabaseConfig
	Store    StoreConfig
	Events   EventsConfig

	// Tenant resolution: "identity" (organization = user id) or "claim".
	TenantResolver string
	TenantClaim    string

	// Redis backs the run lock and the redis event broker.
	RedisURL string

	// Sync behaviour
	Exclusive bool
	LockTTL   time.Duration

	// Periodic sync, disabled when interval is zero.
	ScheduleInterval      time.Duration
	ScheduleOrganizations []string

	// ExecutorURL makes the trigger endpoint call a remote executor instead
	// of running the sync in-process.
	ExecutorURL string

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	HubSpot struct {
		BaseURL           string   `yaml:"base_url"`
		AccessToken       string   `yaml:"access_token"`
		RefreshToken      string   `yaml:"refresh_token"`
		ClientID          string   `yaml:"client_id"`
		ClientSecret      string   `yaml:"client_secret"`
		PageSize          int      `yaml:"page_size"`
		RequestsPerSecond *float64 `yaml:"requests_per_second"` // nil means unset
		Timeout           string   `yaml:"timeout"`
	} `yaml:"hubspot"`
	Supabase struct {
		URL            string `yaml:"url"`
		ServiceRoleKey string `yaml:"service_role_key"`
		AnonKey        string `yaml:"anon_key"`
		JWTSecret      string `yaml:"jwt_secret"`
	} `yaml:"supabase"`
	Store struct {
		Driver       string `yaml:"driver"`
		DSN          string `yaml:"dsn"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"store"`
	Tenant struct {
		Resolver string `yaml:"resolver"`
		Claim    string `yaml:"claim"`
	} `yaml:"tenant"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Events struct {
		Broker  string `yaml:"broker"`
		Queue   string `yaml:"queue"`
		NATSURL string `yaml:"nats_url"`
		Subject string `yaml:"subject"`
	} `yaml:"events"`
	Sync struct {
		Exclusive bool   `yaml:"exclusive"`
		LockTTL   string `yaml:"lock_ttl"`
	} `yaml:"sync"`
	Schedule struct {
		Interval      string   `yaml:"interval"`
		Organizations []string `yaml:"organizations"`
	} `yaml:"schedule"`
	Executor struct {
		URL string `yaml:"url"`
	} `yaml:"executor"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A missing config file is not an error: every
// setting has an environment variable.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		HubSpot: HubSpotConfig{
			BaseURL:           firstNonEmpty(raw.HubSpot.BaseURL, envOrDefault("HUBSPOT_BASE_URL", "https://api.hubapi.com")),
			AccessToken:       firstNonEmpty(raw.HubSpot.AccessToken, os.Getenv("HUBSPOT_ACCESS_TOKEN")),
			RefreshToken:      firstNonEmpty(raw.HubSpot.RefreshToken, os.Getenv("HUBSPOT_REFRESH_TOKEN")),
			ClientID:          firstNonEmpty(raw.HubSpot.ClientID, os.Getenv("HUBSPOT_CLIENT_ID")),
			ClientSecret:      firstNonEmpty(raw.HubSpot.ClientSecret, os.Getenv("HUBSPOT_CLIENT_SECRET")),
			PageSize:          firstPositive(raw.HubSpot.PageSize, envOrDefaultInt("HUBSPOT_PAGE_SIZE", 100)),
			RequestsPerSecond: envOrDefaultFloat("HUBSPOT_REQUESTS_PER_SECOND", 9),
			Timeout:           durationOr(raw.HubSpot.Timeout, envOrDefaultDuration("HUBSPOT_TIMEOUT", 30*time.Second)),
		},
		Supabase: SupabaseConfig{
			URL:            firstNonEmpty(raw.Supabase.URL, os.Getenv("SUPABASE_URL")),
			ServiceRoleKey: firstNonEmpty(raw.Supabase.ServiceRoleKey, os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
			AnonKey:        firstNonEmpty(raw.Supabase.AnonKey, os.Getenv("SUPABASE_ANON_KEY"), os.Getenv("NEXT_PUBLIC_SUPABASE_ANON_KEY")),
			JWTSecret:      firstNonEmpty(raw.Supabase.JWTSecret, os.Getenv("SUPABASE_JWT_SECRET")),
		},
		Store: StoreConfig{
			Driver:       strings.ToLower(firstNonEmpty(raw.Store.Driver, envOrDefault("STORE_DRIVER", "postgres"))),
			DSN:          firstNonEmpty(raw.Store.DSN, os.Getenv("DATABASE_URL")),
			WriteTimeout: durationOr(raw.Store.WriteTimeout, envOrDefaultDuration("STORE_WRITE_TIMEOUT", 10*time.Second)),
		},
		Events: EventsConfig{
			Broker:  strings.ToLower(firstNonEmpty(raw.Events.Broker, os.Getenv("EVENTS_BROKER"))),
			Queue:   firstNonEmpty(raw.Events.Queue, envOrDefault("EVENTS_QUEUE", "crmsync:events")),
			NATSURL: firstNonEmpty(raw.Events.NATSURL, envOrDefault("NATS_URL", "nats://localhost:4222")),
			Subject: firstNonEmpty(raw.Events.Subject, envOrDefault("EVENTS_SUBJECT", "crmsync.sync.completed")),
		},
		TenantResolver:        strings.ToLower(firstNonEmpty(raw.Tenant.Resolver, envOrDefault("TENANT_RESOLVER", "identity"))),
		TenantClaim:           firstNonEmpty(raw.Tenant.Claim, envOrDefault("TENANT_CLAIM", "app_metadata.organization_id")),
		RedisURL:              firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		Exclusive:             raw.Sync.Exclusive || envOrDefaultBool("SYNC_EXCLUSIVE", false),
		LockTTL:               durationOr(raw.Sync.LockTTL, envOrDefaultDuration("SYNC_LOCK_TTL", 15*time.Minute)),
		ScheduleInterval:      durationOr(raw.Schedule.Interval, envOrDefaultDuration("SCHEDULE_INTERVAL", 0)),
		ScheduleOrganizations: raw.Schedule.Organizations,
		ExecutorURL:           firstNonEmpty(raw.Executor.URL, os.Getenv("EXECUTOR_URL")),
		Port:                  envOrDefaultInt("PORT", 8080),
	}

	// An explicit zero disables client-side throttling.
	if raw.HubSpot.RequestsPerSecond != nil {
		cfg.HubSpot.RequestsPerSecond = *raw.HubSpot.RequestsPerSecond
	}
	if len(cfg.ScheduleOrganizations) == 0 {
		cfg.ScheduleOrganizations = splitList(os.Getenv("SCHEDULE_ORGANIZATIONS"))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RemoteExecutor reports whether syncs run in a remote executor. Such a
// process needs no HubSpot or store settings.
func (c *Config) RemoteExecutor() bool {
	return c.ExecutorURL != ""
}

func (c *Config) validate() error {
	if c.RemoteExecutor() {
		if c.Supabase.AnonKey == "" && c.Supabase.ServiceRoleKey == "" {
			return fmt.Errorf("remote executor needs SUPABASE_ANON_KEY or SUPABASE_SERVICE_ROLE_KEY")
		}
		return c.validateOptions()
	}
	if c.HubSpot.AccessToken == "" && c.HubSpot.RefreshToken == "" {
		return fmt.Errorf("hubspot access token is required (HUBSPOT_ACCESS_TOKEN)")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for postgres (DATABASE_URL)")
		}
	case "sqlite":
		if c.Store.DSN == "" {
			c.Store.DSN = "data/crmsync.sqlite"
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	return c.validateOptions()
}

func (c *Config) validateOptions() error {
	switch c.TenantResolver {
	case "identity", "claim":
	default:
		return fmt.Errorf("unsupported tenant resolver %q", c.TenantResolver)
	}
	switch c.Events.Broker {
	case "", "none", "redis", "nats":
	default:
		return fmt.Errorf("unsupported events broker %q", c.Events.Broker)
	}
	if c.Events.Broker == "redis" && c.RedisURL == "" {
		return fmt.Errorf("redis events broker needs REDIS_URL")
	}
	if c.Exclusive && c.RedisURL == "" {
		return fmt.Errorf("exclusive sync needs REDIS_URL for the run lock")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
		return d
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
