package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
	"github.com/nutrilens/labelscan-worker/internal/pipeline"
	"github.com/nutrilens/labelscan-worker/internal/quality"
	"github.com/nutrilens/labelscan-worker/internal/recognize"
)

type fakeStore struct {
	started  []string
	results  []*pipeline.Result
	failures map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{failures: make(map[string]error)}
}

func (f *fakeStore) RecordStarted(ctx context.Context, jobID string) error {
	f.started = append(f.started, jobID)
	return nil
}

func (f *fakeStore) RecordResult(ctx context.Context, result *pipeline.Result) error {
	f.results = append(f.results, result)
	return nil
}

func (f *fakeStore) RecordFailure(ctx context.Context, jobID string, cause error) error {
	f.failures[jobID] = cause
	return nil
}

type fakeAssessor struct {
	score float64
}

func (f *fakeAssessor) Assess(img image.Image) *quality.Assessment {
	return &quality.Assessment{
		OverallScore:        f.score,
		Recommendation:      quality.RecommendationGood,
		EstimatedOCRSuccess: f.score,
	}
}

type fakeTextRecognizer struct {
	result *recognize.Result
	err    error
}

func (f *fakeTextRecognizer) Run(ctx context.Context, jobID string, img []byte, opts recognize.Options) (*recognize.Result, error) {
	return f.result, f.err
}

type fakePusher struct {
	pushed []*pipeline.Result
	err    error
}

func (f *fakePusher) PushExtraction(ctx context.Context, result *pipeline.Result) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, result)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func labelResult(texts ...string) *recognize.Result {
	lines := make([]recognize.TextLine, len(texts))
	for i, text := range texts {
		lines[i] = recognize.TextLine{
			Text:        text,
			Confidence:  0.95,
			BoundingBox: recognize.Rect{Y: float64(i) * 0.05},
		}
	}
	return &recognize.Result{Lines: lines}
}

func newTestConsumer(t *testing.T, store JobStore, score float64, rec pipeline.TextRecognizer, pusher FoodLogPusher) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(&ConsumerConfig{
		RedisURL:     "redis://localhost:6379",
		QueueName:    "labelscan:jobs",
		Concurrency:  1,
		MaxImageSize: 1 << 20,
		Extraction:   config.DefaultExtractionOptions(),
		Assessor:     &fakeAssessor{score: score},
		Recognizer:   rec,
		Storage:      store,
		FoodLog:      pusher,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}
	return consumer
}

func extractTask(t *testing.T, payload JobPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(TaskTypeExtract, data)
}

func TestJobPayloadUnmarshalFormats(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []byte
		wantErr bool
	}{
		{
			name: "base64 string",
			raw:  `{"jobId":"job-1","imageBuffer":"aGVsbG8="}`,
			want: []byte("hello"),
		},
		{
			name: "legacy Buffer object",
			raw:  `{"jobId":"job-1","imageBuffer":{"type":"Buffer","data":[104,105]}}`,
			want: []byte("hi"),
		},
		{
			name: "absent buffer",
			raw:  `{"jobId":"job-1"}`,
			want: nil,
		},
		{
			name:    "invalid base64",
			raw:     `{"jobId":"job-1","imageBuffer":"not base64!"}`,
			wantErr: true,
		},
		{
			name:    "Buffer object without data",
			raw:     `{"jobId":"job-1","imageBuffer":{"type":"Buffer"}}`,
			wantErr: true,
		},
		{
			name:    "unsupported buffer type",
			raw:     `{"jobId":"job-1","imageBuffer":42}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload JobPayload
			err := json.Unmarshal([]byte(tt.raw), &payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected unmarshal error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if !bytes.Equal(payload.ImageBuffer, tt.want) {
				t.Errorf("buffer = %q, want %q", payload.ImageBuffer, tt.want)
			}
		})
	}
}

func TestHandleExtractCompletesJob(t *testing.T) {
	store := newFakeStore()
	pusher := &fakePusher{}
	rec := &fakeTextRecognizer{result: labelResult(
		"Calories 250",
		"Total Fat 12g",
		"Protein 5g",
		"Sodium 470mg",
	)}
	consumer := newTestConsumer(t, store, 0.9, rec, pusher)

	task := extractTask(t, JobPayload{JobID: "job-1", ImageBuffer: pngBytes(t)})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("handleExtract failed: %v", err)
	}

	if len(store.started) != 1 || store.started[0] != "job-1" {
		t.Errorf("started = %v, want [job-1]", store.started)
	}
	if len(store.results) != 1 {
		t.Fatalf("results recorded = %d, want 1", len(store.results))
	}
	if store.results[0].JobID != "job-1" {
		t.Errorf("result job ID = %s, want job-1", store.results[0].JobID)
	}
	if len(pusher.pushed) != 1 {
		t.Errorf("pushed = %d, want 1", len(pusher.pushed))
	}
}

func TestHandleExtractGeneratesJobID(t *testing.T) {
	store := newFakeStore()
	rec := &fakeTextRecognizer{result: labelResult("Calories 250")}
	consumer := newTestConsumer(t, store, 0.9, rec, nil)

	task := extractTask(t, JobPayload{ImageBuffer: pngBytes(t)})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("handleExtract failed: %v", err)
	}

	if len(store.results) != 1 || store.results[0].JobID == "" {
		t.Fatalf("expected one result with a generated job ID, got %+v", store.results)
	}
}

func TestHandleExtractEmptyImage(t *testing.T) {
	store := newFakeStore()
	consumer := newTestConsumer(t, store, 0.9, &fakeTextRecognizer{}, nil)

	task := extractTask(t, JobPayload{JobID: "job-1"})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("empty image must not be retried, got %v", err)
	}

	if code := xerrors.CodeOf(store.failures["job-1"]); code != xerrors.ErrorInvalidImageFormat {
		t.Errorf("failure code = %s, want %s", code, xerrors.ErrorInvalidImageFormat)
	}
}

func TestHandleExtractOversizedImage(t *testing.T) {
	store := newFakeStore()
	consumer := newTestConsumer(t, store, 0.9, &fakeTextRecognizer{}, nil)
	consumer.config.MaxImageSize = 16

	task := extractTask(t, JobPayload{JobID: "job-1", ImageBuffer: pngBytes(t)})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("oversized image must not be retried, got %v", err)
	}

	if code := xerrors.CodeOf(store.failures["job-1"]); code != xerrors.ErrorInvalidImageFormat {
		t.Errorf("failure code = %s, want %s", code, xerrors.ErrorInvalidImageFormat)
	}
}

func TestHandleExtractQualityRejectionIsTerminal(t *testing.T) {
	store := newFakeStore()
	rec := &fakeTextRecognizer{result: labelResult("Calories 250")}
	consumer := newTestConsumer(t, store, 0.1, rec, nil)

	task := extractTask(t, JobPayload{JobID: "job-1", ImageBuffer: pngBytes(t)})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("quality rejection must not be retried, got %v", err)
	}

	if code := xerrors.CodeOf(store.failures["job-1"]); code != xerrors.ErrorImageQualityTooLow {
		t.Errorf("failure code = %s, want %s", code, xerrors.ErrorImageQualityTooLow)
	}
	if len(store.results) != 0 {
		t.Error("rejected job must not record a result")
	}
}

func TestHandleExtractNoTextIsTerminal(t *testing.T) {
	store := newFakeStore()
	rec := &fakeTextRecognizer{err: xerrors.NewNoTextFoundError("job-1")}
	consumer := newTestConsumer(t, store, 0.9, rec, nil)

	task := extractTask(t, JobPayload{JobID: "job-1", ImageBuffer: pngBytes(t)})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("missing text must not be retried, got %v", err)
	}

	if code := xerrors.CodeOf(store.failures["job-1"]); code != xerrors.ErrorNoTextFound {
		t.Errorf("failure code = %s, want %s", code, xerrors.ErrorNoTextFound)
	}
}

func TestHandleExtractTimeoutIsRetried(t *testing.T) {
	store := newFakeStore()
	rec := &fakeTextRecognizer{err: xerrors.NewTimeoutError("job-1", 0, context.DeadlineExceeded)}
	consumer := newTestConsumer(t, store, 0.9, rec, nil)

	task := extractTask(t, JobPayload{JobID: "job-1", ImageBuffer: pngBytes(t)})
	err := consumer.handleExtract(context.Background(), task)
	if code := xerrors.CodeOf(err); code != xerrors.ErrorTimeout {
		t.Fatalf("error code = %s, want %s", code, xerrors.ErrorTimeout)
	}

	if _, recorded := store.failures["job-1"]; recorded {
		t.Error("retryable timeout must not be recorded as a terminal failure")
	}
}

func TestHandleExtractInvalidRecognitionLevel(t *testing.T) {
	store := newFakeStore()
	rec := &fakeTextRecognizer{result: labelResult("Calories 250")}
	consumer := newTestConsumer(t, store, 0.9, rec, nil)

	task := extractTask(t, JobPayload{
		JobID:            "job-1",
		ImageBuffer:      pngBytes(t),
		RecognitionLevel: "turbo",
	})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("invalid options must not be retried, got %v", err)
	}

	if code := xerrors.CodeOf(store.failures["job-1"]); code != xerrors.ErrorConfiguration {
		t.Errorf("failure code = %s, want %s", code, xerrors.ErrorConfiguration)
	}
}

func TestHandleExtractMalformedPayload(t *testing.T) {
	store := newFakeStore()
	consumer := newTestConsumer(t, store, 0.9, &fakeTextRecognizer{}, nil)

	task := asynq.NewTask(TaskTypeExtract, []byte("{not json"))
	if err := consumer.handleExtract(context.Background(), task); err == nil {
		t.Fatal("malformed payload should fail the task")
	}
}

func TestHandleExtractPushFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	pusher := &fakePusher{err: context.DeadlineExceeded}
	rec := &fakeTextRecognizer{result: labelResult("Calories 250")}
	consumer := newTestConsumer(t, store, 0.9, rec, pusher)

	task := extractTask(t, JobPayload{JobID: "job-1", ImageBuffer: pngBytes(t)})
	if err := consumer.handleExtract(context.Background(), task); err != nil {
		t.Fatalf("push failure must not fail the job, got %v", err)
	}

	if len(store.results) != 1 {
		t.Fatalf("result not persisted despite push failure")
	}
}
