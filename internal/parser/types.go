package parser

// Nutrient identifies one kind from the closed set a label can carry.
type Nutrient string

const (
	NutrientCalories Nutrient = "calories"

	NutrientProtein       Nutrient = "protein"
	NutrientCarbohydrates Nutrient = "carbohydrates"
	NutrientFat           Nutrient = "fat"
	NutrientSaturatedFat  Nutrient = "saturatedFat"
	NutrientTransFat      Nutrient = "transFat"
	NutrientFiber         Nutrient = "fiber"
	NutrientSugar         Nutrient = "sugar"

	NutrientSodium      Nutrient = "sodium"
	NutrientCholesterol Nutrient = "cholesterol"
	NutrientPotassium   Nutrient = "potassium"
	NutrientCalcium     Nutrient = "calcium"
	NutrientIron        Nutrient = "iron"
	NutrientVitaminA    Nutrient = "vitaminA"
	NutrientVitaminC    Nutrient = "vitaminC"
	NutrientVitaminD    Nutrient = "vitaminD"
	NutrientVitaminE    Nutrient = "vitaminE"
	NutrientVitaminK    Nutrient = "vitaminK"
	NutrientVitaminB6   Nutrient = "vitaminB6"
	NutrientVitaminB12  Nutrient = "vitaminB12"
	NutrientThiamin     Nutrient = "thiamin"
	NutrientRiboflavin  Nutrient = "riboflavin"
	NutrientNiacin      Nutrient = "niacin"
	NutrientFolate      Nutrient = "folate"
	NutrientMagnesium   Nutrient = "magnesium"
	NutrientPhosphorus  Nutrient = "phosphorus"
	NutrientZinc        Nutrient = "zinc"
)

// NutrientValue is one parsed label value. Value is expressed in the
// nutrient's canonical unit unless IsEstimated is set, in which case the
// unit is whatever the label offered (a daily-value percent, an IU count).
type NutrientValue struct {
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	OriginalText string  `json:"originalText"`
	Confidence   float64 `json:"confidence"`
	IsEstimated  bool    `json:"isEstimated"`
}

// ServingInfo is the declared serving size for the label.
type ServingInfo struct {
	Size                 float64  `json:"size"`
	Unit                 string   `json:"unit"`
	Description          *string  `json:"description,omitempty"`
	ServingsPerContainer *float64 `json:"servingsPerContainer,omitempty"`
	Confidence           float64  `json:"confidence"`
}

// RawMatch records one alias hit before tie-breaking, kept for debugging
// and audit.
type RawMatch struct {
	Nutrient  Nutrient `json:"nutrient"`
	LineIndex int      `json:"lineIndex"`
	LineText  string   `json:"lineText"`
	Alias     string   `json:"alias"`
	Fuzzy     bool     `json:"fuzzy"`
	Distance  int      `json:"distance,omitempty"`
	Quality   float64  `json:"quality"`
}

// ConfidenceScore is computed by the aggregator, never by parsing rules.
type ConfidenceScore struct {
	OverallScore     float64 `json:"overallScore"`
	ServingInfoScore float64 `json:"servingInfoScore"`
}

// ParsedNutritionData is the structured output of one parse. Parsing
// never fails; sparse or garbled input yields nil fields and zero
// confidence contributions instead of an error.
type ParsedNutritionData struct {
	Calories       *NutrientValue              `json:"calories,omitempty"`
	Macronutrients map[Nutrient]*NutrientValue `json:"macronutrients"`
	Micronutrients map[Nutrient]*NutrientValue `json:"micronutrients"`
	ServingInfo    *ServingInfo                `json:"servingInfo,omitempty"`
	Confidence     ConfidenceScore             `json:"confidence"`
	RawMatches     []RawMatch                  `json:"rawMatches,omitempty"`
}

// HasBasicNutrition reports whether the parse found calories, or the full
// protein/carbohydrate/fat macro triple.
func (p *ParsedNutritionData) HasBasicNutrition() bool {
	if p.Calories != nil {
		return true
	}
	return p.Macronutrients[NutrientProtein] != nil &&
		p.Macronutrients[NutrientCarbohydrates] != nil &&
		p.Macronutrients[NutrientFat] != nil
}

// Field looks up a nutrient value across the calories, macro and micro
// sections. Returns nil when the nutrient was not found.
func (p *ParsedNutritionData) Field(n Nutrient) *NutrientValue {
	if n == NutrientCalories {
		return p.Calories
	}
	if v, ok := p.Macronutrients[n]; ok {
		return v
	}
	return p.Micronutrients[n]
}

// FoundCount is the number of nutrient fields with a parsed value.
func (p *ParsedNutritionData) FoundCount() int {
	count := len(p.Macronutrients) + len(p.Micronutrients)
	if p.Calories != nil {
		count++
	}
	return count
}
