/**
 * Label scan worker entry point
 *
 * Wires configuration, storage, the recognition stack, and the queue
 * consumer, then runs until SIGINT or SIGTERM.
 */

package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nutrilens/labelscan-worker/internal/clients"
	"github.com/nutrilens/labelscan-worker/internal/config"
	"github.com/nutrilens/labelscan-worker/internal/logging"
	"github.com/nutrilens/labelscan-worker/internal/quality"
	"github.com/nutrilens/labelscan-worker/internal/queue"
	"github.com/nutrilens/labelscan-worker/internal/recognize"
	"github.com/nutrilens/labelscan-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		stdlog.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log := logging.New("labelscan-worker", cfg.Environment)
	log.Info().
		Str("environment", cfg.Environment).
		Int("concurrency", cfg.WorkerConcurrency).
		Str("queue", cfg.QueueName).
		Msg("Starting label scan worker")

	store, err := storage.NewManager(cfg.DatabaseURL, cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	recognizer, err := recognize.NewTesseractRecognizer(cfg.OCRLanguage, cfg.TempDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Tesseract recognizer")
	}
	recognition := recognize.NewService(
		recognizer,
		cfg.Extraction.RecognitionTimeout,
		cfg.Extraction.MinimumTextConfidence,
		log,
	)

	var foodLog queue.FoodLogPusher
	if cfg.FoodLogURL != "" {
		client := clients.NewFoodLogClient(cfg.FoodLogURL, log)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := client.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("Food-log API health check failed, pushes may not arrive")
		}
		cancel()

		foodLog = client
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:     cfg.RedisURL,
		QueueName:    cfg.QueueName,
		Concurrency:  cfg.WorkerConcurrency,
		MaxImageSize: cfg.MaxImageSize,
		Extraction:   cfg.Extraction,
		Assessor:     quality.NewAssessor(),
		Recognizer:   recognition,
		Storage:      store,
		FoodLog:      foodLog,
		Logger:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create queue consumer")
	}

	if err := consumer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start queue consumer")
	}

	log.Info().Msg("Worker ready, waiting for extraction jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	if err := consumer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping queue consumer")
	}

	log.Info().Msg("Worker stopped")
}
