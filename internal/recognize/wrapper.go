/**
 * Recognition service wrapper
 *
 * Wraps a Recognizer with the timeout, cancellation, filtering and
 * ordering guarantees the pipeline relies on. The wrapper owns the error
 * taxonomy for the recognition stage; the underlying recognizer only
 * reports raw failures.
 */

package recognize

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
)

// Service runs text recognition with a per-call timeout and normalizes
// the output into a Result.
type Service struct {
	recognizer Recognizer
	timeout    time.Duration
	minConf    float64
	log        zerolog.Logger
}

// NewService wraps a recognizer. Lines below minConfidence are dropped
// from every result.
func NewService(recognizer Recognizer, timeout time.Duration, minConfidence float64, log zerolog.Logger) *Service {
	return &Service{
		recognizer: recognizer,
		timeout:    timeout,
		minConf:    minConfidence,
		log:        log,
	}
}

// Run executes one recognition pass.
//
// Errors are mapped onto the extraction taxonomy: the recognition timeout
// yields a TIMEOUT error, an empty result after confidence filtering
// yields NO_TEXT_FOUND, and any recognizer failure yields
// OCR_PROCESSING_FAILED. Cancellation of the parent context is passed
// through untouched so the caller can tell user cancellation apart from
// a deadline.
func (s *Service) Run(ctx context.Context, jobID string, img []byte, opts Options) (*Result, error) {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Debug().
		Str("job_id", jobID).
		Str("level", string(opts.Level)).
		Int("vocabulary_words", len(opts.Vocabulary)).
		Msg("Starting text recognition")

	lines, err := s.recognizer.Recognize(runCtx, img, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.NewTimeoutError(jobID, s.timeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, xerrors.NewOCRFailedError(jobID, err)
	}

	kept := make([]TextLine, 0, len(lines))
	for _, line := range lines {
		if line.Confidence >= s.minConf {
			kept = append(kept, line)
		}
	}

	if len(kept) == 0 {
		return nil, xerrors.NewNoTextFoundError(jobID)
	}

	// Reading order: top to bottom, ties resolved left to right.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].BoundingBox.Y != kept[j].BoundingBox.Y {
			return kept[i].BoundingBox.Y < kept[j].BoundingBox.Y
		}
		return kept[i].BoundingBox.X < kept[j].BoundingBox.X
	})

	elapsed := time.Since(start)
	s.log.Debug().
		Str("job_id", jobID).
		Int("lines", len(kept)).
		Int("filtered", len(lines)-len(kept)).
		Dur("elapsed", elapsed).
		Msg("Text recognition complete")

	return &Result{
		Lines:            kept,
		FullText:         joinLines(kept),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// DefaultOptions builds recognition options from extraction tuning.
func DefaultOptions(ext config.ExtractionOptions) Options {
	return Options{
		Level:      ext.RecognitionLevel,
		Vocabulary: ext.CustomVocabulary,
	}
}
