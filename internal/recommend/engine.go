/**
 * Recommendation generation for extraction results
 *
 * Stateless rule evaluation over parsed nutrition data and the image
 * quality assessment. Each rule either fires or stays silent; output is
 * ordered by priority, then by rule declaration order.
 */

package recommend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nutrilens/labelscan-worker/internal/parser"
	"github.com/nutrilens/labelscan-worker/internal/quality"
)

// Priority orders recommendations for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Recommendation is one piece of guidance for the user.
type Recommendation struct {
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

// Confidence below which a found field still warrants a review prompt.
const lowConfidenceThreshold = 0.5

// Quality score below which a retake is suggested outright.
const poorQualityThreshold = 0.55

var coreMacros = []parser.Nutrient{
	parser.NutrientProtein,
	parser.NutrientCarbohydrates,
	parser.NutrientFat,
}

// Engine generates prioritized guidance from one extraction.
type Engine struct{}

// NewEngine creates a recommendation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Generate evaluates all rules and returns recommendations sorted by
// priority descending, rule declaration order within a priority. The
// quality assessment may be nil when the run never assessed an image.
func (e *Engine) Generate(parsed *parser.ParsedNutritionData, assessment *quality.Assessment) []Recommendation {
	recs := make([]Recommendation, 0, 4)

	if parsed.Calories == nil {
		recs = append(recs, Recommendation{
			Message:  "Calories could not be read. Retake the photo with the calories line clearly in frame.",
			Priority: PriorityHigh,
		})
	}

	if missing := missingMacros(parsed); len(missing) > 0 {
		recs = append(recs, Recommendation{
			Message:  fmt.Sprintf("Missing %s. Check that the full nutrition panel is visible.", strings.Join(missing, ", ")),
			Priority: PriorityHigh,
		})
	}

	if assessment != nil && assessment.OverallScore < poorQualityThreshold {
		recs = append(recs, Recommendation{
			Message:  "Image quality is low. Retake the photo with better lighting and a steady hand.",
			Priority: PriorityHigh,
		})
	}

	if parsed.ServingInfo == nil || parsed.ServingInfo.Confidence < lowConfidenceThreshold {
		recs = append(recs, Recommendation{
			Message:  "Serving size was not read reliably. Verify it before saving.",
			Priority: PriorityMedium,
		})
	}

	if shaky := lowConfidenceMacros(parsed); len(shaky) > 0 {
		recs = append(recs, Recommendation{
			Message:  fmt.Sprintf("Low confidence on %s. Double-check these values.", strings.Join(shaky, ", ")),
			Priority: PriorityMedium,
		})
	}

	if len(parsed.Micronutrients) == 0 {
		recs = append(recs, Recommendation{
			Message:  "No vitamins or minerals were detected. They may be lower on the label.",
			Priority: PriorityLow,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.rank() > recs[j].Priority.rank()
	})
	return recs
}

// HighPriority filters to the high-priority subset, preserving order.
func HighPriority(recs []Recommendation) []Recommendation {
	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		if r.Priority == PriorityHigh {
			out = append(out, r)
		}
	}
	return out
}

func missingMacros(parsed *parser.ParsedNutritionData) []string {
	missing := make([]string, 0, len(coreMacros))
	for _, n := range coreMacros {
		if parsed.Macronutrients[n] == nil {
			missing = append(missing, string(n))
		}
	}
	return missing
}

func lowConfidenceMacros(parsed *parser.ParsedNutritionData) []string {
	shaky := make([]string, 0, len(coreMacros))
	for _, n := range coreMacros {
		if v := parsed.Macronutrients[n]; v != nil && v.Confidence < lowConfidenceThreshold {
			shaky = append(shaky, string(n))
		}
	}
	return shaky
}
