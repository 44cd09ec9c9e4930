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

// Package lock provides a per-organization run lock backed by Redis SET NX
// with a TTL, so two sync runs for one organization never overlap.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed run can hold the lock.
	DefaultTTL = 15 * time.Minute

	keyPrefix = "crmsync:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out per-organization locks.
type Locker struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewLocker creates a Redis-backed locker. A non-positive ttl uses DefaultTTL.
func NewLocker(rdb redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// TryAcquire takes the lock for organizationID. It returns ok=false without
// error when another run holds it. The returned release func is safe to call
// after the lock expired.
func (l *Locker) TryAcquire(ctx context.Context, organizationID string) (release func(context.Context) error, ok bool, err error) {
	key := keyPrefix + organizationID
	token := uuid.NewString()

	set, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock SETNX: %w", err)
	}
	if !set {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("lock release: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// Ping checks the Redis connection.
func (l *Locker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.rdb.Ping(ctx).Err()
}
