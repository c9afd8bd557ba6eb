package parser

import (
	"math"
	"testing"
)

func TestServingSizeFraction(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "Serving Size 2/3 cup (55g)"))

	info := data.ServingInfo
	if info == nil {
		t.Fatal("serving info not found")
	}
	if math.Abs(info.Size-2.0/3.0) > 0.001 {
		t.Errorf("size = %v, want ~0.667", info.Size)
	}
	if info.Unit != "cup" {
		t.Errorf("unit = %q, want cup", info.Unit)
	}
	if info.Description == nil || *info.Description == "" {
		t.Error("expected a non-empty parenthetical description")
	}
	if info.Confidence <= 0 || info.Confidence > 1 {
		t.Errorf("confidence %v out of range", info.Confidence)
	}
}

func TestServingSizeVariants(t *testing.T) {
	testCases := []struct {
		name string
		line string
		size float64
		unit string
	}{
		{"decimal", "Serving Size 1.5 cups", 1.5, "cups"},
		{"whole", "Serving size: 2 tbsp", 2, "tbsp"},
		{"mixed number", "Serving Size 1 1/2 cups (35g)", 1.5, "cups"},
		{"grams", "Serving Size 30g", 30, "g"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestParser(nil)
			data := p.Parse(labelText(0.9, tc.line))

			info := data.ServingInfo
			if info == nil {
				t.Fatal("serving info not found")
			}
			if math.Abs(info.Size-tc.size) > 0.001 {
				t.Errorf("size = %v, want %v", info.Size, tc.size)
			}
			if info.Unit != tc.unit {
				t.Errorf("unit = %q, want %q", info.Unit, tc.unit)
			}
		})
	}
}

func TestServingsPerContainer(t *testing.T) {
	testCases := []struct {
		name  string
		lines []string
		count float64
	}{
		{"leading count", []string{"Serving Size 1 cup", "8 servings per container"}, 8},
		{"about prefix", []string{"Serving Size 1 cup", "About 4 servings per container"}, 4},
		{"trailing count", []string{"Serving Size 1 cup", "Servings per container: 2"}, 2},
		{"fractional", []string{"Serving Size 1 cup", "2.5 servings per container"}, 2.5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestParser(nil)
			data := p.Parse(labelText(0.9, tc.lines...))

			info := data.ServingInfo
			if info == nil {
				t.Fatal("serving info not found")
			}
			if info.ServingsPerContainer == nil {
				t.Fatal("servings per container not found")
			}
			if math.Abs(*info.ServingsPerContainer-tc.count) > 0.001 {
				t.Errorf("servings per container = %v, want %v", *info.ServingsPerContainer, tc.count)
			}
		})
	}
}

func TestServingInfoAbsent(t *testing.T) {
	p := newTestParser(nil)

	for name, lines := range map[string][]string{
		"no marker":        {"Calories 250"},
		"marker no number": {"Serving Size varies"},
		"number no unit":   {"Serving Size 2/3"},
	} {
		data := p.Parse(labelText(0.9, lines...))
		if data.ServingInfo != nil {
			t.Errorf("%s: unexpected serving info %+v", name, data.ServingInfo)
		}
	}
}

func TestServingsPerContainerAloneIsNotServingInfo(t *testing.T) {
	p := newTestParser(nil)
	data := p.Parse(labelText(0.9, "8 servings per container"))

	if data.ServingInfo != nil {
		t.Error("per-container count without a serving size should not produce serving info")
	}
}
