/**
 * Storage manager for the label scan worker
 *
 * Coordinates persistence across PostgreSQL (job state, durable results)
 * and Redis (result cache, lifecycle events). PostgreSQL is the source of
 * truth; Redis failures degrade to warnings instead of failing the job.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
	"github.com/nutrilens/labelscan-worker/internal/pipeline"
)

// How long completed results stay in the Redis cache.
const defaultResultTTL = 24 * time.Hour

// Manager coordinates PostgreSQL and Redis operations.
type Manager struct {
	postgres *PostgresClient
	redis    *RedisStore
	log      zerolog.Logger
}

// NewManager connects both backends.
func NewManager(databaseURL, redisURL string, log zerolog.Logger) (*Manager, error) {
	postgres, err := NewPostgresClient(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	redis, err := NewRedisStore(redisURL, defaultResultTTL)
	if err != nil {
		postgres.Close()
		return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
	}

	return &Manager{
		postgres: postgres,
		redis:    redis,
		log:      log,
	}, nil
}

// RecordStarted marks a job as processing and announces it.
func (m *Manager) RecordStarted(ctx context.Context, jobID string) error {
	update := &JobUpdate{
		JobID:    jobID,
		Status:   JobStatusProcessing,
		Progress: 0,
	}
	if err := m.postgres.UpdateJobStatus(ctx, update); err != nil {
		return xerrors.NewStorageFailedError(jobID, err)
	}

	if err := m.redis.PublishEvent(ctx, &JobEvent{JobID: jobID, Status: JobStatusProcessing}); err != nil {
		m.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish processing event")
	}

	return nil
}

// RecordResult persists a completed extraction: durable row in PostgreSQL,
// cached copy and completion event in Redis.
func (m *Manager) RecordResult(ctx context.Context, result *pipeline.Result) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}

	resultMap, err := toMap(result)
	if err != nil {
		return xerrors.NewStorageFailedError(result.JobID, err)
	}

	update := &JobUpdate{
		JobID:            result.JobID,
		Status:           JobStatusCompleted,
		Progress:         100,
		OverallScore:     result.Parsed.Confidence.OverallScore,
		SuccessRating:    string(result.SuccessRating),
		ProcessingTimeMs: result.Metrics.TotalDurationMs,
		LineCount:        result.Metrics.LineCount,
		MatchCount:       result.Metrics.MatchCount,
		Result:           resultMap,
	}
	if err := m.postgres.UpdateJobStatus(ctx, update); err != nil {
		return xerrors.NewStorageFailedError(result.JobID, err)
	}

	if err := m.redis.CacheResult(ctx, result.JobID, result); err != nil {
		m.log.Warn().Err(err).Str("job_id", result.JobID).Msg("Failed to cache result")
	}

	event := &JobEvent{
		JobID:         result.JobID,
		Status:        JobStatusCompleted,
		SuccessRating: string(result.SuccessRating),
	}
	if err := m.redis.PublishEvent(ctx, event); err != nil {
		m.log.Warn().Err(err).Str("job_id", result.JobID).Msg("Failed to publish completion event")
	}

	return nil
}

// RecordFailure persists a terminal extraction failure.
func (m *Manager) RecordFailure(ctx context.Context, jobID string, cause error) error {
	update := &JobUpdate{
		JobID:        jobID,
		Status:       JobStatusFailed,
		Progress:     100,
		ErrorMessage: cause.Error(),
	}

	var ee *xerrors.ExtractionError
	if errors.As(cause, &ee) {
		update.ErrorCode = string(ee.Code)
		update.ErrorMessage = ee.Message
		update.Result = ee.ToMap()
	}

	if err := m.postgres.UpdateJobStatus(ctx, update); err != nil {
		return xerrors.NewStorageFailedError(jobID, err)
	}

	event := &JobEvent{JobID: jobID, Status: JobStatusFailed, ErrorCode: update.ErrorCode}
	if err := m.redis.PublishEvent(ctx, event); err != nil {
		m.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish failure event")
	}

	return nil
}

// GetJobByID retrieves job state from PostgreSQL.
func (m *Manager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return m.postgres.GetJobByID(ctx, jobID)
}

// GetCachedResult loads a cached result from Redis if one exists.
func (m *Manager) GetCachedResult(ctx context.Context, jobID string) (*pipeline.Result, bool, error) {
	var result pipeline.Result
	found, err := m.redis.GetResult(ctx, jobID, &result)
	if err != nil || !found {
		return nil, false, err
	}
	return &result, true, nil
}

// Ping checks both backends.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.postgres.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := m.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// GetStats returns statistics from both backends.
func (m *Manager) GetStats() map[string]interface{} {
	pgStats := m.postgres.GetStats()
	return map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}
}

// Close closes all connections.
func (m *Manager) Close() error {
	var pgErr, redisErr error

	if m.postgres != nil {
		pgErr = m.postgres.Close()
	}
	if m.redis != nil {
		redisErr = m.redis.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if redisErr != nil {
		return fmt.Errorf("failed to close Redis: %w", redisErr)
	}
	return nil
}

func toMap(result *pipeline.Result) (map[string]interface{}, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("failed to convert result: %w", err)
	}
	return out, nil
}
