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

package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/crmsync/internal/config"
	"github.com/bcem/crmsync/internal/events"
)

func sqliteConfig(t *testing.T) *config.Config {
	return &config.Config{
		HubSpot: config.HubSpotConfig{
			BaseURL:           "http://127.0.0.1:1",
			AccessToken:       "pat-test",
			PageSize:          100,
			RequestsPerSecond: 9,
			Timeout:           time.Second,
		},
		Store: config.StoreConfig{
			Driver:       "sqlite",
			DSN:          filepath.Join(t.TempDir(), "app.sqlite"),
			WriteTimeout: time.Second,
		},
	}
}

func TestNew_SQLiteWithoutBrokers(t *testing.T) {
	a, err := New(context.Background(), sqliteConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Executor)
	assert.Nil(t, a.Redis)
	assert.IsType(t, events.Nop{}, a.Publisher)

	checks := a.HealthChecks()
	require.Contains(t, checks, "store")
	assert.NotContains(t, checks, "redis")
	assert.NoError(t, checks["store"](context.Background()))
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.RedisURL = "not a url"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
