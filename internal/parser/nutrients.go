package parser

// unitFamily is the canonical unit family a nutrient is reported in.
type unitFamily int

const (
	familyEnergy unitFamily = iota
	familyGram
	familyMilligram
	familyMicrogram
)

func (f unitFamily) canonicalUnit() string {
	switch f {
	case familyEnergy:
		return "kcal"
	case familyGram:
		return "g"
	case familyMilligram:
		return "mg"
	default:
		return "mcg"
	}
}

type nutrientClass int

const (
	classCalorie nutrientClass = iota
	classMacro
	classMicro
)

// rule is the data-driven matching definition for one nutrient kind.
// Aliases are lowercase and ordered longest first so the most specific
// label wins within a kind.
type rule struct {
	aliases []string
	family  unitFamily
	weight  float64
	class   nutrientClass
}

var rules = map[Nutrient]rule{
	NutrientCalories: {
		aliases: []string{"calories", "calorie", "energy"},
		family:  familyEnergy,
		weight:  3.0,
		class:   classCalorie,
	},

	NutrientProtein: {
		aliases: []string{"protein"},
		family:  familyGram,
		weight:  2.0,
		class:   classMacro,
	},
	NutrientCarbohydrates: {
		aliases: []string{"total carbohydrates", "total carbohydrate", "carbohydrates", "carbohydrate", "total carbs", "carbs"},
		family:  familyGram,
		weight:  2.0,
		class:   classMacro,
	},
	NutrientFat: {
		aliases: []string{"total fat", "fat"},
		family:  familyGram,
		weight:  2.0,
		class:   classMacro,
	},
	NutrientSaturatedFat: {
		aliases: []string{"saturated fat", "saturated", "sat fat"},
		family:  familyGram,
		weight:  1.0,
		class:   classMacro,
	},
	NutrientTransFat: {
		aliases: []string{"trans fat", "trans"},
		family:  familyGram,
		weight:  1.0,
		class:   classMacro,
	},
	NutrientFiber: {
		aliases: []string{"dietary fiber", "fiber", "fibre"},
		family:  familyGram,
		weight:  1.0,
		class:   classMacro,
	},
	NutrientSugar: {
		aliases: []string{"total sugars", "sugars", "sugar"},
		family:  familyGram,
		weight:  1.0,
		class:   classMacro,
	},

	NutrientSodium: {
		aliases: []string{"sodium", "salt"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientCholesterol: {
		aliases: []string{"cholesterol"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientPotassium: {
		aliases: []string{"potassium"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientCalcium: {
		aliases: []string{"calcium"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientIron: {
		aliases: []string{"iron"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminA: {
		aliases: []string{"vitamin a"},
		family:  familyMicrogram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminC: {
		aliases: []string{"vitamin c"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminD: {
		aliases: []string{"vitamin d"},
		family:  familyMicrogram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminE: {
		aliases: []string{"vitamin e"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminK: {
		aliases: []string{"vitamin k"},
		family:  familyMicrogram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminB6: {
		aliases: []string{"vitamin b-6", "vitamin b6"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientVitaminB12: {
		aliases: []string{"vitamin b-12", "vitamin b12"},
		family:  familyMicrogram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientThiamin: {
		aliases: []string{"vitamin b1", "thiamine", "thiamin"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientRiboflavin: {
		aliases: []string{"riboflavin", "vitamin b2"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientNiacin: {
		aliases: []string{"vitamin b3", "niacin"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientFolate: {
		aliases: []string{"folic acid", "folate"},
		family:  familyMicrogram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientMagnesium: {
		aliases: []string{"magnesium"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientPhosphorus: {
		aliases: []string{"phosphorus"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
	NutrientZinc: {
		aliases: []string{"zinc"},
		family:  familyMilligram,
		weight:  0.5,
		class:   classMicro,
	},
}

// ruleOrder fixes iteration order so parsing and aggregation are
// deterministic. Calories first, macros next, micros last.
var ruleOrder = []Nutrient{
	NutrientCalories,
	NutrientProtein,
	NutrientCarbohydrates,
	NutrientFat,
	NutrientSaturatedFat,
	NutrientTransFat,
	NutrientFiber,
	NutrientSugar,
	NutrientSodium,
	NutrientCholesterol,
	NutrientPotassium,
	NutrientCalcium,
	NutrientIron,
	NutrientVitaminA,
	NutrientVitaminC,
	NutrientVitaminD,
	NutrientVitaminE,
	NutrientVitaminK,
	NutrientVitaminB6,
	NutrientVitaminB12,
	NutrientThiamin,
	NutrientRiboflavin,
	NutrientNiacin,
	NutrientFolate,
	NutrientMagnesium,
	NutrientPhosphorus,
	NutrientZinc,
}

// Kinds returns all supported nutrient kinds in canonical order.
func Kinds() []Nutrient {
	out := make([]Nutrient, len(ruleOrder))
	copy(out, ruleOrder)
	return out
}

// Weight returns the importance weight used in overall-score aggregation.
func Weight(n Nutrient) float64 {
	return rules[n].weight
}
