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

package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes events onto a Redis list. Consumers BRPOP the list,
// so the oldest event is read first.
type RedisPublisher struct {
	rdb       redis.UniversalClient
	queueName string
}

// NewRedisPublisher creates a publisher targeting the given list.
func NewRedisPublisher(rdb redis.UniversalClient, queueName string) *RedisPublisher {
	return &RedisPublisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Publish serialises the event and LPUSHes it.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := e.encode()
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published event to queue",
		"event_id", e.ID,
		"type", e.Type,
		"organization", e.Run.OrganizationID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is shared with the run lock and closed
// by its owner.
func (p *RedisPublisher) Close() error { return nil }
