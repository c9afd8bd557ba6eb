/**
 * Configuration for the label scan worker
 *
 * Loads configuration from environment variables. Extraction tuning lives
 * in ExtractionOptions so the pipeline can be embedded without the worker
 * wiring.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
)

// RecognitionLevel selects the accuracy/speed tradeoff of the recognizer.
type RecognitionLevel string

const (
	RecognitionFast     RecognitionLevel = "fast"
	RecognitionAccurate RecognitionLevel = "accurate"
)

// ExtractionOptions tunes one pipeline run.
type ExtractionOptions struct {
	RecognitionLevel       RecognitionLevel
	MinimumQualityScore    float64
	MinimumTextConfidence  float64
	CustomVocabulary       []string
	EnableFuzzyMatching    bool
	MaxUnitDistance        int
	MinimumMatchConfidence float64
	PipelineTimeout        time.Duration
	RecognitionTimeout     time.Duration
}

// DefaultExtractionOptions returns the tuning used when a job carries no
// overrides.
func DefaultExtractionOptions() ExtractionOptions {
	return ExtractionOptions{
		RecognitionLevel:       RecognitionAccurate,
		MinimumQualityScore:    0.30,
		MinimumTextConfidence:  0.20,
		EnableFuzzyMatching:    true,
		MaxUnitDistance:        2,
		MinimumMatchConfidence: 0.20,
		PipelineTimeout:        60 * time.Second,
		RecognitionTimeout:     30 * time.Second,
	}
}

// Validate checks extraction options bounds.
func (o ExtractionOptions) Validate() error {
	if o.RecognitionLevel != RecognitionFast && o.RecognitionLevel != RecognitionAccurate {
		return xerrors.NewConfigurationError(fmt.Sprintf("recognition level must be fast or accurate, got %q", o.RecognitionLevel))
	}
	if o.MinimumQualityScore < 0 || o.MinimumQualityScore > 1 {
		return xerrors.NewConfigurationError(fmt.Sprintf("minimum quality score must be in [0,1], got %v", o.MinimumQualityScore))
	}
	if o.MinimumTextConfidence < 0 || o.MinimumTextConfidence > 1 {
		return xerrors.NewConfigurationError(fmt.Sprintf("minimum text confidence must be in [0,1], got %v", o.MinimumTextConfidence))
	}
	if o.MinimumMatchConfidence < 0 || o.MinimumMatchConfidence > 1 {
		return xerrors.NewConfigurationError(fmt.Sprintf("minimum match confidence must be in [0,1], got %v", o.MinimumMatchConfidence))
	}
	if o.MaxUnitDistance < 0 || o.MaxUnitDistance > 5 {
		return xerrors.NewConfigurationError(fmt.Sprintf("max unit distance must be between 0 and 5, got %d", o.MaxUnitDistance))
	}
	if o.PipelineTimeout <= 0 {
		return xerrors.NewConfigurationError("pipeline timeout must be positive")
	}
	if o.RecognitionTimeout <= 0 || o.RecognitionTimeout > o.PipelineTimeout {
		return xerrors.NewConfigurationError("recognition timeout must be positive and not exceed the pipeline timeout")
	}
	return nil
}

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Downstream food-log API (optional)
	FoodLogURL string

	// Worker configuration
	WorkerConcurrency int
	MaxImageSize      int64
	TempDir           string

	// Recognition configuration
	OCRLanguage string

	// Pipeline tuning
	Extraction ExtractionOptions

	// Runtime environment
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "labelscan:jobs"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		FoodLogURL:        getEnvOrDefault("FOODLOG_URL", ""),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxImageSize:      getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 20971520), // 20MB
		TempDir:           getEnvOrDefault("TEMP_DIR", "/tmp/labelscan"),
		OCRLanguage:       getEnvOrDefault("OCR_LANGUAGE", "eng"),
		Environment:       getEnvOrDefault("ENVIRONMENT", "development"),
		Extraction:        loadExtractionOptions(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadExtractionOptions() ExtractionOptions {
	opts := DefaultExtractionOptions()

	opts.RecognitionLevel = RecognitionLevel(getEnvOrDefault("RECOGNITION_LEVEL", string(opts.RecognitionLevel)))
	opts.MinimumQualityScore = getEnvAsFloatOrDefault("MIN_QUALITY_SCORE", opts.MinimumQualityScore)
	opts.MinimumTextConfidence = getEnvAsFloatOrDefault("MIN_TEXT_CONFIDENCE", opts.MinimumTextConfidence)
	opts.EnableFuzzyMatching = getEnvAsBoolOrDefault("ENABLE_FUZZY_MATCHING", opts.EnableFuzzyMatching)
	opts.MaxUnitDistance = getEnvAsIntOrDefault("MAX_UNIT_DISTANCE", opts.MaxUnitDistance)
	opts.MinimumMatchConfidence = getEnvAsFloatOrDefault("MIN_MATCH_CONFIDENCE", opts.MinimumMatchConfidence)
	opts.PipelineTimeout = time.Duration(getEnvAsInt64OrDefault("PIPELINE_TIMEOUT_MS", opts.PipelineTimeout.Milliseconds())) * time.Millisecond
	opts.RecognitionTimeout = time.Duration(getEnvAsInt64OrDefault("RECOGNITION_TIMEOUT_MS", opts.RecognitionTimeout.Milliseconds())) * time.Millisecond

	if vocab := os.Getenv("CUSTOM_VOCABULARY"); vocab != "" {
		for _, word := range strings.Split(vocab, ",") {
			word = strings.TrimSpace(word)
			if word != "" {
				opts.CustomVocabulary = append(opts.CustomVocabulary, word)
			}
		}
	}

	return opts
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return xerrors.NewConfigurationError("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return xerrors.NewConfigurationError("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return xerrors.NewConfigurationError(fmt.Sprintf("WORKER_CONCURRENCY must be between 1 and 64, got %d", c.WorkerConcurrency))
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 104857600 { // 1KB to 100MB
		return xerrors.NewConfigurationError(fmt.Sprintf("MAX_IMAGE_SIZE must be between 1KB and 100MB, got %d", c.MaxImageSize))
	}

	if c.OCRLanguage == "" {
		return xerrors.NewConfigurationError("OCR_LANGUAGE is required")
	}

	return c.Extraction.Validate()
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
