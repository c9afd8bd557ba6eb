package recognize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	xerrors "github.com/nutrilens/labelscan-worker/internal/errors"
)

// fakeRecognizer returns canned lines or an error, optionally after
// blocking until its context fires.
type fakeRecognizer struct {
	lines         []TextLine
	err           error
	blockUntilCtx bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img []byte, opts Options) ([]TextLine, error) {
	if f.blockUntilCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.lines, f.err
}

func newTestService(r Recognizer, timeout time.Duration, minConf float64) *Service {
	return NewService(r, timeout, minConf, zerolog.Nop())
}

func TestRunOrdersLinesAndJoinsText(t *testing.T) {
	fake := &fakeRecognizer{
		lines: []TextLine{
			{Text: "Protein 5g", Confidence: 0.9, BoundingBox: Rect{X: 0.1, Y: 0.6}},
			{Text: "Nutrition Facts", Confidence: 0.95, BoundingBox: Rect{X: 0.1, Y: 0.1}},
			{Text: "Calories 230", Confidence: 0.92, BoundingBox: Rect{X: 0.1, Y: 0.3}},
		},
	}
	svc := newTestService(fake, time.Second, 0.2)

	result, err := svc.Run(context.Background(), "job-1", []byte("img"), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"Nutrition Facts", "Calories 230", "Protein 5g"}
	if len(result.Lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(result.Lines), len(want))
	}
	for i, text := range want {
		if result.Lines[i].Text != text {
			t.Errorf("line %d = %q, want %q", i, result.Lines[i].Text, text)
		}
	}

	if result.FullText != "Nutrition Facts\nCalories 230\nProtein 5g" {
		t.Errorf("unexpected full text: %q", result.FullText)
	}
}

func TestRunFiltersLowConfidenceLines(t *testing.T) {
	fake := &fakeRecognizer{
		lines: []TextLine{
			{Text: "Calories 230", Confidence: 0.9, BoundingBox: Rect{Y: 0.1}},
			{Text: "smudge", Confidence: 0.05, BoundingBox: Rect{Y: 0.2}},
		},
	}
	svc := newTestService(fake, time.Second, 0.2)

	result, err := svc.Run(context.Background(), "job-1", []byte("img"), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0].Text != "Calories 230" {
		t.Errorf("expected only the confident line, got %+v", result.Lines)
	}
}

func TestRunNoTextFound(t *testing.T) {
	fake := &fakeRecognizer{
		lines: []TextLine{
			{Text: "noise", Confidence: 0.01},
		},
	}
	svc := newTestService(fake, time.Second, 0.2)

	_, err := svc.Run(context.Background(), "job-1", []byte("img"), Options{})
	if code := xerrors.CodeOf(err); code != xerrors.ErrorNoTextFound {
		t.Fatalf("error code = %s, want %s (err: %v)", code, xerrors.ErrorNoTextFound, err)
	}
}

func TestRunTimeout(t *testing.T) {
	fake := &fakeRecognizer{blockUntilCtx: true}
	svc := newTestService(fake, 20*time.Millisecond, 0.2)

	_, err := svc.Run(context.Background(), "job-1", []byte("img"), Options{})
	if code := xerrors.CodeOf(err); code != xerrors.ErrorTimeout {
		t.Fatalf("error code = %s, want %s (err: %v)", code, xerrors.ErrorTimeout, err)
	}
}

func TestRunCancellationPassesThrough(t *testing.T) {
	fake := &fakeRecognizer{blockUntilCtx: true}
	svc := newTestService(fake, time.Minute, 0.2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Run(ctx, "job-1", []byte("img"), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if code := xerrors.CodeOf(err); code != "" {
		t.Fatalf("cancellation must not be wrapped, got code %s", code)
	}
}

func TestRunRecognizerFailure(t *testing.T) {
	fake := &fakeRecognizer{err: errors.New("native crash")}
	svc := newTestService(fake, time.Second, 0.2)

	_, err := svc.Run(context.Background(), "job-1", []byte("img"), Options{})
	if code := xerrors.CodeOf(err); code != xerrors.ErrorOCRFailed {
		t.Fatalf("error code = %s, want %s (err: %v)", code, xerrors.ErrorOCRFailed, err)
	}
}
