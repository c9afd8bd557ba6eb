/**
 * Queue consumer for the label scan worker
 *
 * Consumes extraction jobs from the Redis-backed queue and drives them
 * through the pipeline. Uses Asynq for queue management, one fresh
 * orchestrator per job since an orchestrator instance permits a single
 * run at a time.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
	"github.com/nutrilens/labelscan-worker/internal/parser"
	"github.com/nutrilens/labelscan-worker/internal/pipeline"
)

// TaskTypeExtract is the task type for label extraction jobs.
const TaskTypeExtract = "label:extract"

// JobPayload is the task payload submitted by the API.
type JobPayload struct {
	JobID            string                 `json:"jobId"`
	UserID           string                 `json:"userId,omitempty"`
	Filename         string                 `json:"filename,omitempty"`
	ImageBuffer      []byte                 `json:"imageBuffer,omitempty"`
	RecognitionLevel string                 `json:"recognitionLevel,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts the imageBuffer field in both formats the API has
// shipped: base64 string (current) and Node.js Buffer object (legacy).
// The base64 string case also covers payloads produced by encoding/json
// itself.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	// Alias type avoids recursion
	type Alias JobPayload
	aux := &struct {
		ImageBuffer interface{} `json:"imageBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.ImageBuffer == nil {
		return nil
	}

	switch v := aux.ImageBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 imageBuffer: %w", err)
		}
		p.ImageBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.ImageBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.ImageBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("imageBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// FoodLogPusher delivers completed results downstream. Pushes are best
// effort.
type FoodLogPusher interface {
	PushExtraction(ctx context.Context, result *pipeline.Result) error
}

// JobStore persists job lifecycle transitions. Satisfied by
// storage.Manager.
type JobStore interface {
	RecordStarted(ctx context.Context, jobID string) error
	RecordResult(ctx context.Context, result *pipeline.Result) error
	RecordFailure(ctx context.Context, jobID string, cause error) error
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int

	MaxImageSize int64
	Extraction   config.ExtractionOptions

	Assessor   pipeline.QualityAssessor
	Recognizer pipeline.TextRecognizer
	Storage    JobStore
	FoodLog    FoodLogPusher

	Logger zerolog.Logger
}

// Consumer handles job consumption from the Redis queue.
type Consumer struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	config *ConsumerConfig
	log    zerolog.Logger
}

// NewConsumer creates a new queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Assessor == nil || cfg.Recognizer == nil {
		return nil, fmt.Errorf("Assessor and Recognizer are required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("Storage is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	log := cfg.Logger

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at 60s
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task_type", task.Type()).Msg("Task processing error")
			}),
		},
	)

	mux := asynq.NewServeMux()
	consumer := &Consumer{
		client: client,
		server: server,
		mux:    mux,
		config: cfg,
		log:    log,
	}
	mux.HandleFunc(TaskTypeExtract, consumer.handleExtract)

	return consumer, nil
}

// Start starts the queue consumer.
func (c *Consumer) Start() error {
	c.log.Info().
		Int("concurrency", c.config.Concurrency).
		Str("queue", c.config.QueueName).
		Msg("Starting queue consumer")

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.log.Error().Err(err).Msg("Queue consumer error")
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop() error {
	c.log.Info().Msg("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.log.Info().Msg("Queue consumer stopped")
	return nil
}

// handleExtract runs one extraction job end to end.
func (c *Consumer) handleExtract(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	jobID := payload.JobID
	log := c.log.With().Str("job_id", jobID).Logger()

	log.Info().
		Int("image_bytes", len(payload.ImageBuffer)).
		Str("user_id", payload.UserID).
		Msg("Extraction job received")

	if len(payload.ImageBuffer) == 0 {
		return c.recordTerminalFailure(ctx, jobID, xerrors.NewInvalidImageFormatError(jobID, fmt.Errorf("empty image buffer")))
	}
	if c.config.MaxImageSize > 0 && int64(len(payload.ImageBuffer)) > c.config.MaxImageSize {
		cause := fmt.Errorf("image is %d bytes, limit is %d", len(payload.ImageBuffer), c.config.MaxImageSize)
		return c.recordTerminalFailure(ctx, jobID, xerrors.NewInvalidImageFormatError(jobID, cause))
	}

	if err := c.config.Storage.RecordStarted(ctx, jobID); err != nil {
		log.Warn().Err(err).Msg("Failed to record job start")
	}

	opts := c.config.Extraction
	if payload.RecognitionLevel != "" {
		opts.RecognitionLevel = config.RecognitionLevel(payload.RecognitionLevel)
		if err := opts.Validate(); err != nil {
			return c.recordTerminalFailure(ctx, jobID, err)
		}
	}

	// One orchestrator per job: an instance permits a single run.
	orchestrator := pipeline.NewOrchestrator(
		c.config.Assessor,
		c.config.Recognizer,
		parser.New(opts, log),
		opts,
		log,
	)

	out, err := orchestrator.Extract(ctx, jobID, payload.ImageBuffer)
	if err != nil {
		return c.recordTerminalFailure(ctx, jobID, err)
	}

	outcome := <-out
	duration := time.Since(startTime)

	if outcome.Err != nil {
		if errors.Is(outcome.Err, context.Canceled) {
			log.Warn().Dur("elapsed", duration).Msg("Extraction cancelled, leaving job for retry")
			return outcome.Err
		}
		switch xerrors.CodeOf(outcome.Err) {
		case xerrors.ErrorImageQualityTooLow, xerrors.ErrorInvalidImageFormat,
			xerrors.ErrorNoTextFound, xerrors.ErrorOCRFailed:
			// Terminal for this image; retrying the same bytes cannot
			// succeed, so the failure is recorded and the task consumed.
			return c.recordTerminalFailure(ctx, jobID, outcome.Err)
		default:
			log.Error().Err(outcome.Err).Dur("elapsed", duration).Msg("Extraction failed, will retry")
			return outcome.Err
		}
	}

	result := outcome.Result
	if err := c.config.Storage.RecordResult(ctx, result); err != nil {
		log.Error().Err(err).Msg("Failed to persist result")
		return err
	}

	if c.config.FoodLog != nil {
		if err := c.config.FoodLog.PushExtraction(ctx, result); err != nil {
			log.Warn().Err(err).Msg("Food-log push failed, result remains available in storage")
		}
	}

	log.Info().
		Dur("elapsed", duration).
		Str("rating", string(result.SuccessRating)).
		Float64("overall_score", result.Parsed.Confidence.OverallScore).
		Bool("usable", result.HasUsableData).
		Msg("Extraction job completed")

	return nil
}

// recordTerminalFailure stores a non-retryable failure and consumes the
// task.
func (c *Consumer) recordTerminalFailure(ctx context.Context, jobID string, cause error) error {
	c.log.Warn().Err(cause).Str("job_id", jobID).Msg("Extraction failed terminally")

	if err := c.config.Storage.RecordFailure(ctx, jobID, cause); err != nil {
		c.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to record failure")
		return err
	}
	return nil
}
