/**
 * Image quality assessment for the label scan worker
 *
 * Scores a decoded raster image for OCR readiness before any expensive
 * recognition work runs. Four independent checks (resolution, brightness,
 * contrast, sharpness) are combined into a weighted overall score that
 * gates the rest of the pipeline.
 */

package quality

import (
	"fmt"
	"image"
	"math"
)

// CheckType identifies one quality check.
type CheckType string

const (
	CheckResolution CheckType = "resolution"
	CheckBrightness CheckType = "brightness"
	CheckContrast   CheckType = "contrast"
	CheckSharpness  CheckType = "sharpness"
)

// Recommendation buckets the overall score for UI display.
type Recommendation string

const (
	RecommendationExcellent  Recommendation = "excellent"
	RecommendationGood       Recommendation = "good"
	RecommendationAcceptable Recommendation = "acceptable"
	RecommendationPoor       Recommendation = "poor"
	RecommendationUnusable   Recommendation = "unusable"
)

// Check is the outcome of a single quality check.
type Check struct {
	Type    CheckType `json:"checkType"`
	Score   float64   `json:"score"`
	Passed  bool      `json:"passed"`
	Details string    `json:"details"`
}

// Assessment is the aggregate quality verdict for one image.
type Assessment struct {
	OverallScore        float64        `json:"overallScore"`
	Checks              []Check        `json:"checks"`
	Recommendation      Recommendation `json:"recommendation"`
	EstimatedOCRSuccess float64        `json:"estimatedOcrSuccess"`
}

// Check weights. Resolution dominates because recognition degrades fastest
// on undersized input.
const (
	weightResolution = 0.30
	weightBrightness = 0.25
	weightContrast   = 0.25
	weightSharpness  = 0.20

	checkPassThreshold = 0.50

	// Full resolution score at 2MP (roughly a 1080p-equivalent photo).
	targetPixels = 2_000_000.0

	// Mean luma band where label text stays legible.
	brightnessTarget = 130.0
	brightnessRange  = 130.0

	// Luma standard deviation at which contrast saturates.
	contrastScale = 64.0

	// Laplacian variance at which sharpness saturates. Blurry photos sit
	// well under 100, crisp label shots over 300.
	sharpnessScale = 500.0

	// Large images are sampled on a grid capped at this many rows/cols.
	maxSampleDim = 256
)

// Assessor scores raster images for OCR readiness. It holds no mutable
// state; Assess is a pure function of the image.
type Assessor struct{}

// NewAssessor creates a quality assessor.
func NewAssessor() *Assessor {
	return &Assessor{}
}

// Assess runs all quality checks and combines them into an Assessment.
func (a *Assessor) Assess(img image.Image) *Assessment {
	gray := sampleLuma(img)

	resolution := a.checkResolution(img)
	brightness := a.checkBrightness(gray)
	contrast := a.checkContrast(gray)
	sharpness := a.checkSharpness(gray)

	overall := resolution.Score*weightResolution +
		brightness.Score*weightBrightness +
		contrast.Score*weightContrast +
		sharpness.Score*weightSharpness

	return &Assessment{
		OverallScore:        overall,
		Checks:              []Check{resolution, brightness, contrast, sharpness},
		Recommendation:      bucket(overall),
		EstimatedOCRSuccess: estimateOCRSuccess(overall),
	}
}

func (a *Assessor) checkResolution(img image.Image) Check {
	bounds := img.Bounds()
	pixels := float64(bounds.Dx() * bounds.Dy())
	score := clamp01(pixels / targetPixels)

	return Check{
		Type:    CheckResolution,
		Score:   score,
		Passed:  score >= checkPassThreshold,
		Details: fmt.Sprintf("%dx%d (%.1fMP)", bounds.Dx(), bounds.Dy(), pixels/1e6),
	}
}

func (a *Assessor) checkBrightness(gray *lumaGrid) Check {
	mean := gray.mean()
	score := clamp01(1.0 - math.Abs(mean-brightnessTarget)/brightnessRange)

	return Check{
		Type:    CheckBrightness,
		Score:   score,
		Passed:  score >= checkPassThreshold,
		Details: fmt.Sprintf("mean luma %.1f", mean),
	}
}

func (a *Assessor) checkContrast(gray *lumaGrid) Check {
	stddev := gray.stddev()
	score := clamp01(stddev / contrastScale)

	return Check{
		Type:    CheckContrast,
		Score:   score,
		Passed:  score >= checkPassThreshold,
		Details: fmt.Sprintf("luma stddev %.1f", stddev),
	}
}

func (a *Assessor) checkSharpness(gray *lumaGrid) Check {
	variance := gray.laplacianVariance()
	score := clamp01(variance / sharpnessScale)

	return Check{
		Type:    CheckSharpness,
		Score:   score,
		Passed:  score >= checkPassThreshold,
		Details: fmt.Sprintf("laplacian variance %.1f", variance),
	}
}

func bucket(score float64) Recommendation {
	switch {
	case score >= 0.90:
		return RecommendationExcellent
	case score >= 0.75:
		return RecommendationGood
	case score >= 0.55:
		return RecommendationAcceptable
	case score >= 0.30:
		return RecommendationPoor
	default:
		return RecommendationUnusable
	}
}

// estimateOCRSuccess maps the overall score to an expected recognition
// success probability. Slightly pessimistic at the low end, monotonic
// throughout.
func estimateOCRSuccess(score float64) float64 {
	return clamp01(math.Pow(score, 1.25))
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

// lumaGrid is a sampled grayscale view of the image used by the
// statistical checks.
type lumaGrid struct {
	w, h int
	v    []float64
}

func sampleLuma(img image.Image) *lumaGrid {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return &lumaGrid{}
	}

	strideX, strideY := 1, 1
	if w > maxSampleDim {
		strideX = w / maxSampleDim
	}
	if h > maxSampleDim {
		strideY = h / maxSampleDim
	}

	grid := &lumaGrid{
		w: (w + strideX - 1) / strideX,
		h: (h + strideY - 1) / strideY,
	}
	grid.v = make([]float64, 0, grid.w*grid.h)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += strideY {
		for x := bounds.Min.X; x < bounds.Max.X; x += strideX {
			r, g, b, _ := img.At(x, y).RGBA()
			// BT.601 luma on 16-bit channels, scaled back to 0-255.
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
			grid.v = append(grid.v, luma)
		}
	}

	return grid
}

func (g *lumaGrid) at(x, y int) float64 {
	return g.v[y*g.w+x]
}

func (g *lumaGrid) mean() float64 {
	if len(g.v) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range g.v {
		sum += v
	}
	return sum / float64(len(g.v))
}

func (g *lumaGrid) stddev() float64 {
	if len(g.v) == 0 {
		return 0
	}
	mean := g.mean()
	sum := 0.0
	for _, v := range g.v {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(g.v)))
}

// laplacianVariance measures edge energy with a 4-neighbor Laplacian
// kernel. Low variance means few gradients, which reads as blur.
func (g *lumaGrid) laplacianVariance() float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}

	responses := make([]float64, 0, (g.w-2)*(g.h-2))
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			lap := 4*g.at(x, y) - g.at(x-1, y) - g.at(x+1, y) - g.at(x, y-1) - g.at(x, y+1)
			responses = append(responses, lap)
		}
	}

	mean := 0.0
	for _, r := range responses {
		mean += r
	}
	mean /= float64(len(responses))

	variance := 0.0
	for _, r := range responses {
		d := r - mean
		variance += d * d
	}
	return variance / float64(len(responses))
}
