package parser

import (
	"math"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
	"github.com/nutrilens/labelscan-worker/internal/recognize"
)

func newTestParser(mutate func(*config.ExtractionOptions)) *Parser {
	opts := config.DefaultExtractionOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts, zerolog.Nop())
}

// labelText builds an OCR result from lines at the given confidence, laid
// out top to bottom.
func labelText(confidence float64, texts ...string) *recognize.Result {
	lines := make([]recognize.TextLine, len(texts))
	for i, text := range texts {
		lines[i] = recognize.TextLine{
			Text:        text,
			Confidence:  confidence,
			BoundingBox: recognize.Rect{X: 0.1, Y: float64(i) * 0.05, Width: 0.8, Height: 0.04},
		}
	}
	return &recognize.Result{Lines: lines}
}

func wantValue(t *testing.T, v *NutrientValue, value float64, unit string) {
	t.Helper()
	if v == nil {
		t.Fatal("nutrient value is nil")
	}
	if math.Abs(v.Value-value) > 1e-6 {
		t.Errorf("value = %v, want %v", v.Value, value)
	}
	if v.Unit != unit {
		t.Errorf("unit = %q, want %q", v.Unit, unit)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		t.Errorf("confidence %v out of [0,1]", v.Confidence)
	}
}

func TestParseWellFormedLabel(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.95,
		"Calories 250",
		"Total Fat 12g",
		"Protein 5g",
		"Sodium 470mg",
	))

	wantValue(t, data.Calories, 250, "kcal")
	wantValue(t, data.Macronutrients[NutrientFat], 12, "g")
	wantValue(t, data.Macronutrients[NutrientProtein], 5, "g")
	wantValue(t, data.Micronutrients[NutrientSodium], 470, "mg")

	if !data.HasBasicNutrition() {
		t.Error("expected basic nutrition to be present")
	}
	for _, n := range []Nutrient{NutrientCalories, NutrientFat, NutrientProtein, NutrientSodium} {
		if c := data.Field(n).Confidence; c < 0.85 {
			t.Errorf("%s confidence = %v, want >= 0.85 for clean exact matches", n, c)
		}
	}
}

func TestParseNonNutritionText(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "This is a recipe for chocolate chip cookies."))

	if data.FoundCount() != 0 {
		t.Errorf("found %d fields in non-nutrition text", data.FoundCount())
	}
	if data.HasBasicNutrition() {
		t.Error("basic nutrition reported for non-nutrition text")
	}
}

func TestParseCaloriesAloneSuffice(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "Calories 180", "Some other text here"))

	wantValue(t, data.Calories, 180, "kcal")
	if len(data.Macronutrients) != 0 {
		t.Errorf("unexpected macronutrients: %v", data.Macronutrients)
	}
	if !data.HasBasicNutrition() {
		t.Error("calories alone should satisfy basic nutrition")
	}
}

func TestParseSpecificBeatsGeneralAlias(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.95,
		"Total Fat 12g",
		"Saturated Fat 3g",
		"Trans Fat 0g",
	))

	wantValue(t, data.Macronutrients[NutrientFat], 12, "g")
	wantValue(t, data.Macronutrients[NutrientSaturatedFat], 3, "g")
	wantValue(t, data.Macronutrients[NutrientTransFat], 0, "g")
}

func TestParseValueFirstOrder(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "250 calories per serving"))

	wantValue(t, data.Calories, 250, "kcal")
}

func TestParseFuzzyAlias(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "Prote1n 5g"))

	wantValue(t, data.Macronutrients[NutrientProtein], 5, "g")

	exact := p.Parse(labelText(0.9, "Protein 5g"))
	if data.Macronutrients[NutrientProtein].Confidence >= exact.Macronutrients[NutrientProtein].Confidence {
		t.Error("fuzzy match should score below an exact match")
	}
}

func TestParseFuzzyDisabled(t *testing.T) {
	p := newTestParser(func(o *config.ExtractionOptions) { o.EnableFuzzyMatching = false })
	data := p.Parse(labelText(0.9, "Prote1n 5g"))

	if data.Macronutrients[NutrientProtein] != nil {
		t.Error("fuzzy match produced a value while fuzzy matching was disabled")
	}
}

func TestParseMassNormalization(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.95,
		"Sodium 0.5g",
		"Vitamin B12 2.4mcg",
		"Iron 18 mg",
	))

	wantValue(t, data.Micronutrients[NutrientSodium], 500, "mg")
	wantValue(t, data.Micronutrients[NutrientVitaminB12], 2.4, "mcg")
	wantValue(t, data.Micronutrients[NutrientIron], 18, "mg")

	if data.Micronutrients[NutrientVitaminB12].IsEstimated {
		t.Error("in-family unit flagged as estimated")
	}
}

func TestParsePercentDailyValueIsEstimated(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.95, "Calcium 20%"))

	calcium := data.Micronutrients[NutrientCalcium]
	if calcium == nil {
		t.Fatal("calcium not found")
	}
	if !calcium.IsEstimated {
		t.Error("percent daily value should be flagged as estimated")
	}
	if calcium.Unit != "%" {
		t.Errorf("unit = %q, want %%", calcium.Unit)
	}
	if calcium.Confidence >= 0.95 {
		t.Errorf("confidence %v not penalized for out-of-family unit", calcium.Confidence)
	}
}

func TestParseValueOnFollowingLine(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "Protein", "5g"))

	wantValue(t, data.Macronutrients[NutrientProtein], 5, "g")

	sameLine := p.Parse(labelText(0.9, "Protein 5g"))
	if data.Macronutrients[NutrientProtein].Confidence >= sameLine.Macronutrients[NutrientProtein].Confidence {
		t.Error("wrapped value should score below a same-line value")
	}
}

func TestParseTieBreakKeepsFirstMatch(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "Calories 250", "Calories 300"))

	wantValue(t, data.Calories, 250, "kcal")
}

func TestParseTieBreakPrefersStrictlyBetterMatch(t *testing.T) {
	p := newTestParser(nil)
	// The first line carries two numbers, so its match quality drops and
	// the later unambiguous line must replace it.
	data := p.Parse(labelText(0.9, "Calories 250 12", "Calories 300"))

	wantValue(t, data.Calories, 300, "kcal")
}

func TestParseAmbiguousLinePenalized(t *testing.T) {
	p := newTestParser(nil)
	ambiguous := p.Parse(labelText(0.9, "Total Fat 12g 18"))
	clean := p.Parse(labelText(0.9, "Total Fat 12g"))

	wantValue(t, ambiguous.Macronutrients[NutrientFat], 12, "g")
	if ambiguous.Macronutrients[NutrientFat].Confidence >= clean.Macronutrients[NutrientFat].Confidence {
		t.Error("line with multiple numbers should score below a single-number line")
	}
}

func TestParseEmptyInput(t *testing.T) {
	p := newTestParser(nil)

	for name, ocr := range map[string]*recognize.Result{
		"nil":      nil,
		"no lines": {},
	} {
		data := p.Parse(ocr)
		if data == nil {
			t.Fatalf("%s: Parse returned nil", name)
		}
		if data.FoundCount() != 0 || data.HasBasicNutrition() {
			t.Errorf("%s: empty input produced fields", name)
		}
	}
}

func TestParseIsDeterministic(t *testing.T) {
	p := newTestParser(nil)
	input := labelText(0.9,
		"Nutrition Facts",
		"Serving Size 2/3 cup (55g)",
		"Calories 230",
		"Total Fat 8g",
		"Saturated Fat 1g",
		"Sodium 160mg",
		"Total Carbohydrate 37g",
		"Dietary Fiber 4g",
		"Total Sugars 12g",
		"Protein 3g",
		"Vitamin D 2mcg",
		"Calcium 260mg",
		"Iron 8mg",
		"Potassium 235mg",
	)

	first := p.Parse(input)
	second := p.Parse(input)

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated parses of the same input differ")
	}
}

func TestParseFullPanel(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.92,
		"Nutrition Facts",
		"Calories 230",
		"Total Fat 8g",
		"Sodium 160mg",
		"Total Carbohydrate 37g",
		"Dietary Fiber 4g",
		"Protein 3g",
	))

	wantValue(t, data.Calories, 230, "kcal")
	wantValue(t, data.Macronutrients[NutrientFat], 8, "g")
	wantValue(t, data.Macronutrients[NutrientCarbohydrates], 37, "g")
	wantValue(t, data.Macronutrients[NutrientFiber], 4, "g")
	wantValue(t, data.Macronutrients[NutrientProtein], 3, "g")
	wantValue(t, data.Micronutrients[NutrientSodium], 160, "mg")

	if len(data.RawMatches) == 0 {
		t.Error("raw matches not recorded")
	}
}

func TestRawMatchBelowThresholdStillRecorded(t *testing.T) {
	p := newTestParser(func(o *config.ExtractionOptions) { o.MinimumMatchConfidence = 0.5 })
	data := p.Parse(labelText(0.3, "Protein 5g"))

	if data.Macronutrients[NutrientProtein] != nil {
		t.Error("low-confidence match should not produce a field")
	}
	if len(data.RawMatches) != 1 {
		t.Fatalf("raw matches = %d, want 1", len(data.RawMatches))
	}
}
