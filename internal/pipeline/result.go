package pipeline

import (
	"github.com/nutrilens/labelscan-worker/internal/confidence"
	"github.com/nutrilens/labelscan-worker/internal/parser"
	"github.com/nutrilens/labelscan-worker/internal/quality"
	"github.com/nutrilens/labelscan-worker/internal/recognize"
	"github.com/nutrilens/labelscan-worker/internal/recommend"
)

// Metrics captures per-stage timing and volume for one run.
type Metrics struct {
	QualityDurationMs     int64 `json:"qualityDurationMs"`
	RecognitionDurationMs int64 `json:"recognitionDurationMs"`
	ParsingDurationMs     int64 `json:"parsingDurationMs"`
	TotalDurationMs       int64 `json:"totalDurationMs"`
	LineCount             int   `json:"lineCount"`
	MatchCount            int   `json:"matchCount"`
}

// Result is the terminal artifact of one completed extraction run. It is
// built once when the run completes and never mutated afterwards.
type Result struct {
	JobID           string                      `json:"jobId"`
	OCR             *recognize.Result           `json:"ocrResult"`
	Parsed          *parser.ParsedNutritionData `json:"parsedNutrition"`
	Quality         *quality.Assessment         `json:"imageQuality"`
	Metrics         Metrics                     `json:"extractionMetrics"`
	SuccessRating   confidence.Rating           `json:"successRating"`
	Recommendations []recommend.Recommendation  `json:"recommendations"`
	HasUsableData   bool                        `json:"hasUsableData"`
}

// Outcome is what an extraction run delivers on its outcome channel:
// either a completed result or the terminal error.
type Outcome struct {
	Result *Result
	Err    error
}
