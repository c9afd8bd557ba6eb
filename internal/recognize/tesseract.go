/**
 * Tesseract-backed line recognizer
 *
 * One gosseract client per call; no session state is shared between runs.
 * The native recognition call cannot be interrupted, so cancellation is
 * implemented by abandoning the call and closing the client, which tears
 * down the underlying Tesseract session.
 */

package recognize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"github.com/nutrilens/labelscan-worker/internal/config"
)

// TesseractRecognizer runs local Tesseract OCR at line granularity.
type TesseractRecognizer struct {
	language string
	tempDir  string
	log      zerolog.Logger
}

// NewTesseractRecognizer creates a Tesseract recognizer for the given
// language. tempDir hosts user-words files built from custom vocabulary.
func NewTesseractRecognizer(language, tempDir string, log zerolog.Logger) (*TesseractRecognizer, error) {
	if language == "" {
		return nil, fmt.Errorf("language is required")
	}

	if tempDir != "" {
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}

	return &TesseractRecognizer{
		language: language,
		tempDir:  tempDir,
		log:      log,
	}, nil
}

type tesseractOutcome struct {
	boxes []gosseract.BoundingBox
	err   error
}

// Recognize extracts text lines with confidence and pixel bounding boxes,
// normalized against the image dimensions.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img []byte, opts Options) ([]TextLine, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to read image dimensions: %w", err)
	}

	client := gosseract.NewClient()
	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(func() { client.Close() }) }
	defer closeClient()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", t.language, err)
	}

	// Fast mode assumes the label fills the frame as a single block;
	// accurate mode lets Tesseract segment the page itself.
	mode := gosseract.PSM_AUTO
	if opts.Level == config.RecognitionFast {
		mode = gosseract.PSM_SINGLE_BLOCK
	}
	if err := client.SetPageSegMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	if len(opts.Vocabulary) > 0 {
		wordsFile, err := t.writeUserWords(opts.Vocabulary)
		if err != nil {
			t.log.Warn().Err(err).Msg("failed to materialize custom vocabulary, continuing without it")
		} else {
			defer os.Remove(wordsFile)
			if err := client.SetVariable(gosseract.SettableVariable("user_words_file"), wordsFile); err != nil {
				t.log.Warn().Err(err).Msg("failed to apply custom vocabulary, continuing without it")
			}
		}
	}

	outcome := make(chan tesseractOutcome, 1)
	go func() {
		if err := client.SetImageFromBytes(img); err != nil {
			outcome <- tesseractOutcome{err: fmt.Errorf("failed to set image: %w", err)}
			return
		}
		boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
		outcome <- tesseractOutcome{boxes: boxes, err: err}
	}()

	select {
	case <-ctx.Done():
		// Abandon the in-flight native call and release the session.
		closeClient()
		return nil, ctx.Err()
	case res := <-outcome:
		if res.err != nil {
			return nil, fmt.Errorf("tesseract recognition failed: %w", res.err)
		}
		return t.toLines(res.boxes, cfg.Width, cfg.Height), nil
	}
}

func (t *TesseractRecognizer) toLines(boxes []gosseract.BoundingBox, width, height int) []TextLine {
	lines := make([]TextLine, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}

		confidence := box.Confidence / 100.0
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		rect := Rect{}
		if width > 0 && height > 0 {
			rect = Rect{
				X:      float64(box.Box.Min.X) / float64(width),
				Y:      float64(box.Box.Min.Y) / float64(height),
				Width:  float64(box.Box.Dx()) / float64(width),
				Height: float64(box.Box.Dy()) / float64(height),
			}
		}

		lines = append(lines, TextLine{
			Text:        text,
			Confidence:  confidence,
			BoundingBox: rect,
		})
	}
	return lines
}

func (t *TesseractRecognizer) writeUserWords(vocabulary []string) (string, error) {
	f, err := os.CreateTemp(t.tempDir, "user-words-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	for _, word := range vocabulary {
		if _, err := fmt.Fprintln(f, word); err != nil {
			os.Remove(f.Name())
			return "", err
		}
	}

	return filepath.Clean(f.Name()), nil
}
