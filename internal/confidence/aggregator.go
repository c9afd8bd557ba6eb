/**
 * Confidence aggregation for parsed nutrition data
 *
 * Combines per-field confidences into the overall extraction score and
 * maps it onto a discrete success rating. This is the only place the
 * ConfidenceScore on ParsedNutritionData is computed; parsing rules never
 * set it directly.
 */

package confidence

import (
	"github.com/nutrilens/labelscan-worker/internal/parser"
)

// Rating is the discrete success verdict for one extraction.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
	RatingFailed    Rating = "failed"
)

const (
	// Extractions with fewer found fields than this are scaled down;
	// a lone confident match should not read as a confident label.
	defaultMinExpectedFields = 4

	// Overall score at or above which the parsed data is usable without
	// manual correction.
	usabilityThreshold = 0.5
)

// Aggregator computes overall and serving-info confidence scores.
type Aggregator struct {
	minExpectedFields int
}

// NewAggregator creates an aggregator with default field expectations.
func NewAggregator() *Aggregator {
	return &Aggregator{minExpectedFields: defaultMinExpectedFields}
}

// Score computes the confidence summary for one parse.
//
// The overall score is the importance-weighted mean of all found-field
// confidences, multiplied by found/minExpectedFields when the extraction
// is sparse. Iteration follows the canonical nutrient order so the result
// is deterministic.
func (a *Aggregator) Score(parsed *parser.ParsedNutritionData) parser.ConfidenceScore {
	var weightedSum, weightTotal float64
	found := 0

	for _, n := range parser.Kinds() {
		value := parsed.Field(n)
		if value == nil {
			continue
		}
		weight := parser.Weight(n)
		weightedSum += weight * value.Confidence
		weightTotal += weight
		found++
	}

	overall := 0.0
	if weightTotal > 0 {
		overall = weightedSum / weightTotal
	}
	if found < a.minExpectedFields {
		overall *= float64(found) / float64(a.minExpectedFields)
	}
	overall = clamp01(overall)

	servingScore := 0.0
	if parsed.ServingInfo != nil {
		servingScore = clamp01(parsed.ServingInfo.Confidence)
	}

	return parser.ConfidenceScore{
		OverallScore:     overall,
		ServingInfoScore: servingScore,
	}
}

// Rate buckets an overall score into a success rating.
func (a *Aggregator) Rate(overall float64) Rating {
	switch {
	case overall >= 0.85:
		return RatingExcellent
	case overall >= 0.70:
		return RatingGood
	case overall >= usabilityThreshold:
		return RatingFair
	case overall >= 0.25:
		return RatingPoor
	default:
		return RatingFailed
	}
}

// Usable reports whether parsed data at this score may populate a food
// record without manual review.
func (a *Aggregator) Usable(overall float64) bool {
	return overall >= usabilityThreshold
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
