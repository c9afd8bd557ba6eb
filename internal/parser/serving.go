package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nutrilens/labelscan-worker/internal/recognize"
)

var (
	servingSizeMarker = "serving size"

	// Size expressions, most specific first: mixed number ("1 1/2"),
	// bare fraction ("2/3"), plain decimal ("0.75", "55").
	mixedNumberPattern = regexp.MustCompile(`^\s*(\d+)\s+(\d+)\s*/\s*(\d+)`)
	fractionPattern    = regexp.MustCompile(`^\s*(\d+)\s*/\s*(\d+)`)
	decimalPattern     = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)

	servingUnitPattern   = regexp.MustCompile(`^\s*([a-z]+)`)
	parentheticalPattern = regexp.MustCompile(`\(([^)]+)\)`)

	perContainerLeading  = regexp.MustCompile(`(?:about\s+)?(\d+(?:[.,]\d+)?)\s+servings?\s+per\s+container`)
	perContainerTrailing = regexp.MustCompile(`servings?\s+per\s+container[:\s]+(?:about\s+)?(\d+(?:[.,]\d+)?)`)
)

// parseServingInfo runs the two serving scans: a size+unit pattern after a
// "serving size" marker, and an independent servings-per-container count.
// Either may be absent; without a size and unit no ServingInfo is emitted.
func (p *Parser) parseServingInfo(lines []recognize.TextLine, folded []string) *ServingInfo {
	var info *ServingInfo

	for i, fold := range folded {
		idx := strings.Index(fold, servingSizeMarker)
		if idx < 0 {
			continue
		}

		rest := fold[idx+len(servingSizeMarker):]
		rest = strings.TrimLeft(rest, ": \t")

		size, consumed, ok := parseSizeExpression(rest)
		if !ok || size <= 0 {
			continue
		}

		unitMatch := servingUnitPattern.FindStringSubmatch(rest[consumed:])
		if unitMatch == nil {
			continue
		}

		candidate := &ServingInfo{
			Size:       size,
			Unit:       unitMatch[1],
			Confidence: clamp01(lines[i].Confidence),
		}
		if paren := parentheticalPattern.FindStringSubmatch(rest); paren != nil {
			desc := strings.TrimSpace(paren[1])
			if desc != "" {
				candidate.Description = &desc
			}
		}

		info = candidate
		break
	}

	if info == nil {
		return nil
	}

	for _, fold := range folded {
		if count, ok := parseServingsPerContainer(fold); ok {
			info.ServingsPerContainer = &count
			break
		}
	}

	return info
}

// parseSizeExpression reads a leading size expression and reports how many
// bytes it consumed.
func parseSizeExpression(s string) (float64, int, bool) {
	if m := mixedNumberPattern.FindStringSubmatchIndex(s); m != nil {
		whole, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		num, _ := strconv.ParseFloat(s[m[4]:m[5]], 64)
		den, _ := strconv.ParseFloat(s[m[6]:m[7]], 64)
		if den == 0 {
			return 0, 0, false
		}
		return whole + num/den, m[1], true
	}
	if m := fractionPattern.FindStringSubmatchIndex(s); m != nil {
		num, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		den, _ := strconv.ParseFloat(s[m[4]:m[5]], 64)
		if den == 0 {
			return 0, 0, false
		}
		return num / den, m[1], true
	}
	if m := decimalPattern.FindStringSubmatchIndex(s); m != nil {
		text := strings.ReplaceAll(s[m[2]:m[3]], ",", ".")
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, 0, false
		}
		return value, m[1], true
	}
	return 0, 0, false
}

func parseServingsPerContainer(fold string) (float64, bool) {
	var raw string
	if m := perContainerLeading.FindStringSubmatch(fold); m != nil {
		raw = m[1]
	} else if m := perContainerTrailing.FindStringSubmatch(fold); m != nil {
		raw = m[1]
	} else {
		return 0, false
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
