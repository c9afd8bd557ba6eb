/**
 * Nutrition label text parser
 *
 * Scans recognized text lines for nutrient aliases and adjacent numeric
 * values. Matching is data-driven from the rule table in nutrients.go:
 * exact alias matches on word boundaries first, bounded-edit-distance
 * fuzzy matches second, with a quality score tracking how ambiguous the
 * evidence was. Parsing never fails; unmatchable input produces an empty
 * ParsedNutritionData.
 */

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
	"github.com/nutrilens/labelscan-worker/internal/recognize"
)

// Quality multipliers applied while scoring a match. Values below the
// configured minimum match confidence are discarded entirely.
const (
	ambiguityPenalty   = 0.75
	missingUnitPenalty = 0.90
	lookaheadPenalty   = 0.90
	estimatedPenalty   = 0.60

	// Fuzzy matching is skipped for aliases shorter than this; tiny
	// aliases match too much garbage within any useful edit distance.
	minFuzzyAliasLen = 5

	// How many following lines are searched when an alias line carries
	// no number of its own.
	valueLookaheadLines = 2
)

var (
	// Letter units require a trailing word boundary so the "cal" in
	// "250 calories" is not read as a unit token.
	numberPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:(kcal|cal|mcg|µg|ug|mg|iu|g)\b|(%))?`)
	wordPattern   = regexp.MustCompile(`[a-z][a-z0-9-]*`)
)

// Parser extracts structured nutrition data from recognized label text.
type Parser struct {
	fuzzyEnabled bool
	maxDistance  int
	minMatch     float64
	log          zerolog.Logger
}

// New creates a parser with the given extraction tuning.
func New(opts config.ExtractionOptions, log zerolog.Logger) *Parser {
	return &Parser{
		fuzzyEnabled: opts.EnableFuzzyMatching,
		maxDistance:  opts.MaxUnitDistance,
		minMatch:     opts.MinimumMatchConfidence,
		log:          log,
	}
}

// aliasMatch is one alias hit on one line, with its character span in the
// case-folded line text.
type aliasMatch struct {
	nutrient Nutrient
	alias    string
	start    int
	end      int
	fuzzy    bool
	distance int
}

// fieldMatch is a fully resolved nutrient value candidate.
type fieldMatch struct {
	value   *NutrientValue
	quality float64
}

// numToken is one numeric token, with an optional trailing unit.
type numToken struct {
	start int
	end   int
	value float64
	unit  string
}

// Parse scans all recognized lines and assembles structured nutrition
// data. The same input always produces the same output; iteration runs in
// line order and canonical nutrient order throughout.
func (p *Parser) Parse(ocr *recognize.Result) *ParsedNutritionData {
	data := &ParsedNutritionData{
		Macronutrients: make(map[Nutrient]*NutrientValue),
		Micronutrients: make(map[Nutrient]*NutrientValue),
	}
	if ocr == nil || !ocr.HasText() {
		return data
	}

	lines := ocr.Lines
	folded := make([]string, len(lines))
	for i := range lines {
		folded[i] = strings.ToLower(lines[i].Text)
	}

	bests := make(map[Nutrient]fieldMatch)
	for i := range lines {
		for _, match := range p.matchAliases(folded[i]) {
			resolved := p.resolveValue(lines, folded, i, match)
			if resolved == nil {
				continue
			}

			data.RawMatches = append(data.RawMatches, RawMatch{
				Nutrient:  match.nutrient,
				LineIndex: i,
				LineText:  strings.TrimSpace(lines[i].Text),
				Alias:     match.alias,
				Fuzzy:     match.fuzzy,
				Distance:  match.distance,
				Quality:   resolved.quality,
			})

			if resolved.value.Confidence < p.minMatch {
				continue
			}

			// First match wins unless a later one is strictly better.
			if current, ok := bests[match.nutrient]; !ok || resolved.quality > current.quality {
				bests[match.nutrient] = *resolved
			}
		}
	}

	for _, n := range ruleOrder {
		best, ok := bests[n]
		if !ok {
			continue
		}
		switch rules[n].class {
		case classCalorie:
			data.Calories = best.value
		case classMacro:
			data.Macronutrients[n] = best.value
		case classMicro:
			data.Micronutrients[n] = best.value
		}
	}

	data.ServingInfo = p.parseServingInfo(lines, folded)

	p.log.Debug().
		Int("lines", len(lines)).
		Int("raw_matches", len(data.RawMatches)).
		Int("fields", data.FoundCount()).
		Bool("has_basic_nutrition", data.HasBasicNutrition()).
		Msg("Label text parsed")

	return data
}

// matchAliases finds all nutrient alias hits on one case-folded line.
// Exact matches run first; fuzzy matching only fills in nutrients the
// exact pass missed. A hit whose span sits inside another nutrient's
// longer span is dropped, so "fat" never fires inside "saturated fat".
func (p *Parser) matchAliases(fold string) []aliasMatch {
	matches := make([]aliasMatch, 0, 4)
	matched := make(map[Nutrient]bool)

	for _, n := range ruleOrder {
		for _, alias := range rules[n].aliases {
			idx := findBounded(fold, alias)
			if idx < 0 {
				continue
			}
			matches = append(matches, aliasMatch{
				nutrient: n,
				alias:    alias,
				start:    idx,
				end:      idx + len(alias),
			})
			matched[n] = true
			break
		}
	}

	if p.fuzzyEnabled {
		words := wordPattern.FindAllStringIndex(fold, -1)
		for _, n := range ruleOrder {
			if matched[n] {
				continue
			}
			if fm, ok := p.fuzzyMatch(fold, words, n); ok {
				matches = append(matches, fm)
			}
		}
	}

	return dropContained(matches)
}

// fuzzyMatch slides a window of as many words as the alias has over the
// line and keeps the closest window within the edit distance bound.
func (p *Parser) fuzzyMatch(fold string, words [][]int, n Nutrient) (aliasMatch, bool) {
	best := aliasMatch{nutrient: n, fuzzy: true, distance: p.maxDistance + 1}

	for _, alias := range rules[n].aliases {
		if len(alias) < minFuzzyAliasLen {
			continue
		}
		span := len(strings.Fields(alias))
		for i := 0; i+span <= len(words); i++ {
			start, end := words[i][0], words[i+span-1][1]
			window := fold[start:end]
			dist := levenshtein.Distance(window, alias, nil)
			if dist == 0 || dist > p.maxDistance {
				continue
			}
			if dist < best.distance {
				best.alias = alias
				best.start = start
				best.end = end
				best.distance = dist
			}
		}
	}

	return best, best.alias != ""
}

// dropContained removes matches another nutrient's match subsumes. A
// longer covering span always wins; on an identical span an exact match
// beats a fuzzy one and a closer fuzzy match beats a farther one. This is
// what keeps "fat" from firing inside "saturated fat" and a fuzzy
// "vitamin b1" from firing over an exact "vitamin b12".
func dropContained(matches []aliasMatch) []aliasMatch {
	kept := make([]aliasMatch, 0, len(matches))
	for i, m := range matches {
		contained := false
		for j, o := range matches {
			if i == j || o.nutrient == m.nutrient {
				continue
			}
			if o.start > m.start || o.end < m.end {
				continue
			}
			switch {
			case o.end-o.start > m.end-m.start:
				contained = true
			case !o.fuzzy && m.fuzzy:
				contained = true
			case o.fuzzy && m.fuzzy && o.distance < m.distance:
				contained = true
			}
			if contained {
				break
			}
		}
		if !contained {
			kept = append(kept, m)
		}
	}
	return kept
}

// resolveValue finds the numeric value for an alias hit and scores the
// pairing. Numbers on the alias line are preferred, label-first over
// value-first; a short look-ahead window covers labels whose value wrapped
// onto the next line. Returns nil when no usable number exists.
func (p *Parser) resolveValue(lines []recognize.TextLine, folded []string, i int, match aliasMatch) *fieldMatch {
	r := rules[match.nutrient]

	quality := 1.0
	if match.fuzzy {
		quality *= 1.0 - float64(match.distance)/float64(p.maxDistance+1)
	}

	lineConf := lines[i].Confidence
	origin := strings.TrimSpace(lines[i].Text)

	var token *numToken
	nums := extractNumbers(folded[i], match.start, match.end)
	if len(nums) > 0 {
		for k := range nums {
			if nums[k].start >= match.end {
				token = &nums[k]
				break
			}
		}
		if token == nil {
			for k := len(nums) - 1; k >= 0; k-- {
				if nums[k].end <= match.start {
					token = &nums[k]
					break
				}
			}
		}
		if len(nums) > 1 {
			quality *= ambiguityPenalty
		}
	} else {
		for j := i + 1; j <= i+valueLookaheadLines && j < len(lines); j++ {
			next := extractNumbers(folded[j], -1, -1)
			if len(next) == 0 {
				continue
			}
			token = &next[0]
			if len(next) > 1 {
				quality *= ambiguityPenalty
			}
			quality *= lookaheadPenalty
			if lines[j].Confidence < lineConf {
				lineConf = lines[j].Confidence
			}
			origin = origin + " " + strings.TrimSpace(lines[j].Text)
			break
		}
	}
	if token == nil {
		return nil
	}

	value, unit, unitQuality, estimated := normalizeUnit(token.value, token.unit, r.family)
	quality *= unitQuality

	confidence := clamp01(lineConf * quality)
	if estimated {
		confidence = clamp01(confidence * estimatedPenalty)
	}

	return &fieldMatch{
		value: &NutrientValue{
			Value:        value,
			Unit:         unit,
			OriginalText: origin,
			Confidence:   confidence,
			IsEstimated:  estimated,
		},
		quality: quality,
	}
}

// extractNumbers finds numeric tokens in a folded line, skipping any that
// overlap the alias span (so "b12" does not read as a value). Pass a
// negative span to keep everything.
func extractNumbers(fold string, spanStart, spanEnd int) []numToken {
	raw := numberPattern.FindAllStringSubmatchIndex(fold, -1)
	tokens := make([]numToken, 0, len(raw))
	for _, m := range raw {
		start, end := m[0], m[1]
		if spanStart >= 0 && start < spanEnd && end > spanStart {
			continue
		}

		text := strings.ReplaceAll(fold[m[2]:m[3]], ",", ".")
		value, err := strconv.ParseFloat(text, 64)
		if err != nil || value < 0 {
			continue
		}

		unit := ""
		if m[4] >= 0 {
			unit = fold[m[4]:m[5]]
		} else if m[6] >= 0 {
			unit = "%"
		}

		tokens = append(tokens, numToken{start: start, end: end, value: value, unit: unit})
	}
	return tokens
}

// normalizeUnit converts a raw number+unit into the nutrient's canonical
// unit. Mass units convert freely between g, mg and mcg. A unit outside
// the family (a daily-value percent, an IU count) is kept as-is and
// flagged as estimated.
func normalizeUnit(value float64, unit string, family unitFamily) (float64, string, float64, bool) {
	if family == familyEnergy {
		switch unit {
		case "", "kcal", "cal":
			return value, "kcal", 1.0, false
		default:
			return value, unit, 1.0, true
		}
	}

	target := family.canonicalUnit()
	switch unit {
	case "":
		return value, target, missingUnitPenalty, false
	case "g", "mg", "mcg", "ug", "µg":
		u := unit
		if u == "ug" || u == "µg" {
			u = "mcg"
		}
		return value * massGrams(u) / massGrams(target), target, 1.0, false
	default:
		return value, unit, 1.0, true
	}
}

func massGrams(unit string) float64 {
	switch unit {
	case "g":
		return 1
	case "mg":
		return 1e-3
	default:
		return 1e-6
	}
}

// findBounded locates sub in s on word boundaries. Letters and digits on
// either side of a hit disqualify it, so "iron" never fires inside
// "environment" and "vitamin b1" never fires inside "vitamin b12".
func findBounded(s, sub string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], sub)
		if idx < 0 {
			return -1
		}
		idx += from
		if boundedAt(s, idx, idx+len(sub)) {
			return idx
		}
		from = idx + 1
	}
}

func boundedAt(s string, start, end int) bool {
	if start > 0 && isWordByte(s[start-1]) {
		return false
	}
	if end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
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
