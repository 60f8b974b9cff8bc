// Package cache publishes user activity records onto a Redis queue for
// downstream consumers. The queue is optional: with no Redis address
// configured every publish is a no-op.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list activity records are pushed to.
const DefaultQueueName = "tonlobby_activity"

// ActivityRecord is the queue payload.
type ActivityRecord struct {
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Extra     map[string]any `json:"extra,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Queue wraps the Redis client. A nil Queue is valid and drops all
// publishes.
type Queue struct {
	rdb  *redis.Client
	name string
}

// Connect initializes the queue and verifies the connection with a
// short ping.
func Connect(addr string, db int, queueName string) (*Queue, error) {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Queue{rdb: rdb, name: queueName}, nil
}

// Publish serializes the record and RPushes it onto the queue.
func (q *Queue) Publish(ctx context.Context, record ActivityRecord) error {
	if q == nil {
		return nil
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActivityRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}
	return q.rdb.Close()
}
