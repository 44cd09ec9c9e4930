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

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestNewLocker_DefaultTTL verifies a zero TTL falls back to the default.
func TestNewLocker_DefaultTTL(t *testing.T) {
	l := NewLocker(nil, 0)
	if l.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", l.ttl, DefaultTTL)
	}

	l = NewLocker(nil, time.Minute)
	if l.ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", l.ttl)
	}
}

// TestTryAcquire_RedisDown verifies connection errors are returned, not
// reported as a held lock.
func TestTryAcquire_RedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	release, ok, err := NewLocker(rdb, time.Minute).TryAcquire(context.Background(), "org_1")
	if err == nil {
		t.Fatal("expected error with redis unreachable")
	}
	if ok || release != nil {
		t.Errorf("ok = %v, release = %v; want false, nil", ok, release != nil)
	}
}
