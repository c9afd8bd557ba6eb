/**
 * Redis store for the label scan worker
 *
 * Caches completed extraction results for fast API reads and publishes
 * job lifecycle events for subscribers (API push notifications, metrics).
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resultKeyPrefix = "labelscan:result:"
	eventChannel    = "labelscan:events"
)

// RedisStore handles the result cache and the event channel.
type RedisStore struct {
	client    *redis.Client
	resultTTL time.Duration
}

// JobEvent is one lifecycle event published on the event channel.
type JobEvent struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	SuccessRating string `json:"successRating,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// NewRedisStore creates a Redis store from a redis:// URL.
func NewRedisStore(redisURL string, resultTTL time.Duration) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{client: client, resultTTL: resultTTL}, nil
}

// CacheResult stores a serialized extraction result under the job ID.
func (r *RedisStore) CacheResult(ctx context.Context, jobID string, result interface{}) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := r.client.Set(ctx, resultKeyPrefix+jobID, payload, r.resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}

	return nil
}

// GetResult loads a cached extraction result into out. Returns false when
// no cached result exists for the job.
func (r *RedisStore) GetResult(ctx context.Context, jobID string, out interface{}) (bool, error) {
	payload, err := r.client.Get(ctx, resultKeyPrefix+jobID).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cached result: %w", err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return true, nil
}

// PublishEvent emits a job lifecycle event.
func (r *RedisStore) PublishEvent(ctx context.Context, event *JobEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := r.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Ping checks Redis connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
