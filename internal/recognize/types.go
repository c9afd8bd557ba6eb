package recognize

import (
	"context"
	"strings"

	"github.com/nutrilens/labelscan-worker/internal/config"
)

// Rect is a bounding box in normalized [0,1] image coordinates, origin at
// the top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextLine is a single recognized line of text with its recognition
// confidence and position.
type TextLine struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BoundingBox Rect    `json:"boundingBox"`
}

// Result is the normalized output of one recognition pass. Lines are in
// top-to-bottom reading order and FullText is their newline-joined
// concatenation in that order.
type Result struct {
	Lines            []TextLine `json:"recognizedTexts"`
	FullText         string     `json:"fullText"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
}

// HasText reports whether recognition produced any lines.
func (r *Result) HasText() bool {
	return len(r.Lines) > 0
}

func joinLines(lines []TextLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}

// Options carries per-run recognition tuning.
type Options struct {
	Level      config.RecognitionLevel
	Vocabulary []string
}

// Recognizer turns image bytes into recognized text lines. Implementations
// must respect ctx cancellation and release any session resources when the
// context fires.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte, opts Options) ([]TextLine, error)
}
