/**
 * Extraction orchestrator
 *
 * Sequences the pipeline stages (quality gate, text recognition, parsing,
 * confidence aggregation, recommendations) as a small one-directional
 * state machine. A single orchestrator instance runs at most one
 * extraction at a time; a second call while one is in flight is rejected
 * with SERVICE_BUSY rather than queued. Cancellation is cooperative and
 * checked between stages, and propagated into the recognition stage.
 */

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
	"github.com/nutrilens/labelscan-worker/internal/confidence"
	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
	"github.com/nutrilens/labelscan-worker/internal/parser"
	"github.com/nutrilens/labelscan-worker/internal/quality"
	"github.com/nutrilens/labelscan-worker/internal/recognize"
	"github.com/nutrilens/labelscan-worker/internal/recommend"
)

// State names one orchestrator lifecycle position. Transitions are
// one-directional; terminal states are never left.
type State string

const (
	StateIdle                      State = "idle"
	StateAssessingQuality          State = "assessingQuality"
	StateRecognizingText           State = "recognizingText"
	StateParsingText               State = "parsingText"
	StateGeneratingRecommendations State = "generatingRecommendations"
	StateCompleted                 State = "completed"
	StateQualityRejected           State = "qualityRejected"
	StateOCRFailed                 State = "ocrFailed"
	StateCancelled                 State = "cancelled"
	StateError                     State = "error"
)

// Progress checkpoints, weighted by each stage's share of a typical run.
// Recognition dominates wall time.
const (
	progressQualityDone     = 0.10
	progressRecognitionDone = 0.70
	progressParsingDone     = 0.90
	progressDone            = 1.0
)

// QualityAssessor scores a decoded image for OCR readiness.
type QualityAssessor interface {
	Assess(img image.Image) *quality.Assessment
}

// TextRecognizer runs one recognition pass with timeout semantics.
type TextRecognizer interface {
	Run(ctx context.Context, jobID string, img []byte, opts recognize.Options) (*recognize.Result, error)
}

// Orchestrator drives one extraction at a time through the pipeline.
type Orchestrator struct {
	assessor   QualityAssessor
	recognizer TextRecognizer
	parser     *parser.Parser
	aggregator *confidence.Aggregator
	engine     *recommend.Engine
	opts       config.ExtractionOptions
	log        zerolog.Logger

	busy atomic.Bool

	mu       sync.Mutex
	state    State
	progress float64
	cancel   context.CancelFunc
}

// NewOrchestrator wires an orchestrator from its stage implementations.
func NewOrchestrator(
	assessor QualityAssessor,
	recognizer TextRecognizer,
	p *parser.Parser,
	opts config.ExtractionOptions,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		assessor:   assessor,
		recognizer: recognizer,
		parser:     p,
		aggregator: confidence.NewAggregator(),
		engine:     recommend.NewEngine(),
		opts:       opts,
		log:        log,
		state:      StateIdle,
	}
}

// Extract starts one asynchronous extraction run and returns its outcome
// channel immediately. The channel delivers exactly one Outcome. A call
// while another run is in flight fails with SERVICE_BUSY.
func (o *Orchestrator) Extract(ctx context.Context, jobID string, imageData []byte) (<-chan Outcome, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, xerrors.NewServiceBusyError(jobID)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.opts.PipelineTimeout)

	o.mu.Lock()
	o.state = StateIdle
	o.progress = 0
	o.cancel = cancel
	o.mu.Unlock()

	out := make(chan Outcome, 1)
	go func() {
		outcome := o.run(runCtx, jobID, imageData)
		cancel()
		// Release the instance before delivering, so a caller that
		// receives the outcome can start the next run immediately.
		o.busy.Store(false)
		out <- outcome
	}()
	return out, nil
}

// Cancel aborts the in-flight run, if any. The run terminates in the
// cancelled state and its partial results are discarded.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Progress returns run progress in [0,1]. It never decreases within a run.
func (o *Orchestrator) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) advance(s State, progress float64) {
	o.mu.Lock()
	o.state = s
	if progress > o.progress {
		o.progress = progress
	}
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, jobID string, imageData []byte) Outcome {
	start := time.Now()
	var metrics Metrics

	o.advance(StateAssessingQuality, 0)
	o.log.Info().Str("job_id", jobID).Int("image_bytes", len(imageData)).Msg("Extraction started")

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		o.setState(StateError)
		return Outcome{Err: xerrors.NewInvalidImageFormatError(jobID, err)}
	}

	qualityStart := time.Now()
	assessment := o.assessor.Assess(img)
	metrics.QualityDurationMs = time.Since(qualityStart).Milliseconds()

	if assessment.OverallScore < o.opts.MinimumQualityScore {
		o.setState(StateQualityRejected)
		o.log.Warn().
			Str("job_id", jobID).
			Float64("score", assessment.OverallScore).
			Float64("minimum", o.opts.MinimumQualityScore).
			Msg("Image rejected by quality gate")
		return Outcome{Err: xerrors.NewImageQualityTooLowError(jobID, assessment.OverallScore)}
	}
	o.advance(StateAssessingQuality, progressQualityDone)

	if outcome, stop := o.interrupted(ctx, jobID); stop {
		return outcome
	}

	o.setState(StateRecognizingText)
	recognitionStart := time.Now()
	ocr, err := o.recognizer.Run(ctx, jobID, imageData, recognize.DefaultOptions(o.opts))
	metrics.RecognitionDurationMs = time.Since(recognitionStart).Milliseconds()
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			o.setState(StateCancelled)
			return Outcome{Err: context.Canceled}
		case xerrors.CodeOf(err) == xerrors.ErrorTimeout:
			o.setState(StateError)
			return Outcome{Err: err}
		default:
			o.setState(StateOCRFailed)
			return Outcome{Err: err}
		}
	}
	o.advance(StateRecognizingText, progressRecognitionDone)

	if outcome, stop := o.interrupted(ctx, jobID); stop {
		return outcome
	}

	o.setState(StateParsingText)
	parsingStart := time.Now()
	parsed := o.parser.Parse(ocr)
	parsed.Confidence = o.aggregator.Score(parsed)
	metrics.ParsingDurationMs = time.Since(parsingStart).Milliseconds()
	o.advance(StateParsingText, progressParsingDone)

	if outcome, stop := o.interrupted(ctx, jobID); stop {
		return outcome
	}

	o.setState(StateGeneratingRecommendations)
	recommendations := o.engine.Generate(parsed, assessment)

	metrics.TotalDurationMs = time.Since(start).Milliseconds()
	metrics.LineCount = len(ocr.Lines)
	metrics.MatchCount = len(parsed.RawMatches)

	result := &Result{
		JobID:           jobID,
		OCR:             ocr,
		Parsed:          parsed,
		Quality:         assessment,
		Metrics:         metrics,
		SuccessRating:   o.aggregator.Rate(parsed.Confidence.OverallScore),
		Recommendations: recommendations,
		HasUsableData:   o.aggregator.Usable(parsed.Confidence.OverallScore),
	}

	o.advance(StateCompleted, progressDone)
	o.log.Info().
		Str("job_id", jobID).
		Str("rating", string(result.SuccessRating)).
		Float64("overall_score", parsed.Confidence.OverallScore).
		Int("fields", parsed.FoundCount()).
		Int64("total_ms", metrics.TotalDurationMs).
		Msg("Extraction completed")

	return Outcome{Result: result}
}

// interrupted checks the shared cancellation signal between stages.
func (o *Orchestrator) interrupted(ctx context.Context, jobID string) (Outcome, bool) {
	switch ctx.Err() {
	case nil:
		return Outcome{}, false
	case context.Canceled:
		o.setState(StateCancelled)
		return Outcome{Err: context.Canceled}, true
	default:
		o.setState(StateError)
		return Outcome{Err: xerrors.NewTimeoutError(jobID, o.opts.PipelineTimeout, ctx.Err())}, true
	}
}
