package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
	"gridwatch/internal/processing"
)

func testLogger() logger.Logger {
	return logger.NewZerolog(io.Discard, zerolog.Disabled)
}

// testConfig keeps frames at native resolution and disables contrast
// stretching so pixel values survive the pipeline unchanged.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.Preprocess.ScaleFactor = 1.0
	cfg.Preprocess.AutoContrast = false
	return cfg
}

func uniformTestFrame(t *testing.T, id string, rows, cols int, value uint8) Frame {
	t.Helper()

	mat, err := safe.NewMatFromScalar(rows, cols, gocv.MatTypeCV8UC1, float64(value))
	if err != nil {
		t.Fatalf("failed to create frame %s: %v", id, err)
	}

	return Frame{ID: id, Mat: mat}
}

func gradientTestFrame(t *testing.T, id string, rows, cols int) Frame {
	t.Helper()

	mat, err := safe.NewMat(rows, cols, gocv.MatTypeCV8UC1)
	if err != nil {
		t.Fatalf("failed to create frame %s: %v", id, err)
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if err := mat.SetUCharAt(y, x, uint8((y+x)%256)); err != nil {
				t.Fatalf("failed to set pixel: %v", err)
			}
		}
	}

	return Frame{ID: id, Mat: mat}
}

func maskValue(t *testing.T, mat *safe.Mat, x, y int) uint8 {
	t.Helper()

	value, err := mat.GetUCharAt(y, x)
	if err != nil {
		t.Fatalf("failed to read pixel (%d,%d): %v", x, y, err)
	}
	return value
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Golden.SampleCount = 4

	set := &FrameSet{}
	for i := 0; i < 4; i++ {
		set.Frames = append(set.Frames, uniformTestFrame(t, fmt.Sprintf("clean_%d", i), 100, 100, 128))
	}
	dirty := uniformTestFrame(t, "dirty", 100, 100, 128)
	for y := 40; y < 50; y++ {
		for x := 40; x < 50; x++ {
			if err := dirty.Mat.SetUCharAt(y, x, 255); err != nil {
				t.Fatalf("failed to paint anomaly: %v", err)
			}
		}
	}
	set.Frames = append(set.Frames, dirty)
	defer set.Close()

	result, err := NewCoordinator(cfg, testLogger()).Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer result.Close()

	if result.Succeeded() != 5 || result.Failed() != 0 {
		t.Fatalf("expected all 5 frames to succeed, got %d/%d", result.Succeeded(), result.Failed())
	}

	// The golden seeds come from the four clean frames only.
	if got := maskValue(t, result.Golden, 45, 45); got != 128 {
		t.Errorf("golden should be the clean scene, got %d at the anomaly site", got)
	}

	// A featureless golden yields a fully inclusive ROI.
	if n := gocv.CountNonZero(result.ROI.GetMat()); n != 100*100 {
		t.Errorf("expected a fully inclusive ROI, got %d/%d", n, 100*100)
	}

	for _, outcome := range result.Frames {
		if outcome.Err != nil {
			t.Fatalf("frame %s unexpectedly failed: %v", outcome.ID, outcome.Err)
		}
		if outcome.FinalMask.Cols() != 100 || outcome.FinalMask.Rows() != 100 {
			t.Fatalf("frame %s mask not restored to input resolution: %dx%d",
				outcome.ID, outcome.FinalMask.Cols(), outcome.FinalMask.Rows())
		}

		n := gocv.CountNonZero(outcome.FinalMask.GetMat())
		if outcome.ID == "dirty" {
			if n != 100 {
				t.Errorf("dirty frame should flag exactly the 10x10 block, got %d pixels", n)
			}
			if got := maskValue(t, outcome.FinalMask, 45, 45); got != 255 {
				t.Errorf("anomaly interior should be flagged, got %d", got)
			}
			if got := maskValue(t, outcome.FinalMask, 10, 10); got != 0 {
				t.Errorf("clean region of dirty frame should stay dark, got %d", got)
			}
		} else if n != 0 {
			t.Errorf("clean frame %s should produce an empty mask, got %d pixels", outcome.ID, n)
		}
	}
}

func TestRunEmptySet(t *testing.T) {
	_, err := NewCoordinator(testConfig(), testLogger()).Run(context.Background(), &FrameSet{})
	if !processing.IsKind(err, processing.KindEmptyInput) {
		t.Errorf("expected empty-input error, got %v", err)
	}
}

func TestRunNilSet(t *testing.T) {
	_, err := NewCoordinator(testConfig(), testLogger()).Run(context.Background(), nil)
	if !processing.IsKind(err, processing.KindEmptyInput) {
		t.Errorf("expected empty-input error, got %v", err)
	}
}

func TestRunRejectsMixedDimensions(t *testing.T) {
	set := &FrameSet{Frames: []Frame{
		uniformTestFrame(t, "a", 100, 100, 128),
		uniformTestFrame(t, "b", 100, 120, 128),
	}}
	defer set.Close()

	_, err := NewCoordinator(testConfig(), testLogger()).Run(context.Background(), set)
	if !processing.IsKind(err, processing.KindDimensionMismatch) {
		t.Errorf("expected dimension-mismatch error, got %v", err)
	}
}

func TestRunIsolatesDegenerateFrames(t *testing.T) {
	cfg := testConfig()
	cfg.Preprocess.AutoContrast = true

	set := &FrameSet{Frames: []Frame{
		gradientTestFrame(t, "good_0", 100, 100),
		gradientTestFrame(t, "good_1", 100, 100),
		uniformTestFrame(t, "flat", 100, 100, 128),
		gradientTestFrame(t, "good_2", 100, 100),
	}}
	defer set.Close()

	result, err := NewCoordinator(cfg, testLogger()).Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run should survive one degenerate frame: %v", err)
	}
	defer result.Close()

	if result.Succeeded() != 3 || result.Failed() != 1 {
		t.Fatalf("expected 3 succeeded / 1 failed, got %d/%d", result.Succeeded(), result.Failed())
	}

	for _, outcome := range result.Frames {
		if outcome.ID != "flat" {
			if outcome.Err != nil {
				t.Errorf("frame %s unexpectedly failed: %v", outcome.ID, outcome.Err)
			}
			continue
		}

		if outcome.FinalMask != nil {
			t.Error("failed frame should carry no mask")
		}
		if !processing.IsKind(outcome.Err, processing.KindFrameProcessing) {
			t.Errorf("expected a frame-processing error, got %v", outcome.Err)
		}
		if !processing.IsKind(outcome.Err, processing.KindDegenerateImage) {
			t.Errorf("expected the degenerate-image cause to be preserved, got %v", outcome.Err)
		}
	}
}

func TestRunInvalidSampleCount(t *testing.T) {
	cfg := testConfig()
	cfg.Golden.SampleCount = 10

	set := &FrameSet{Frames: []Frame{
		uniformTestFrame(t, "a", 50, 50, 128),
		uniformTestFrame(t, "b", 50, 50, 128),
	}}
	defer set.Close()

	_, err := NewCoordinator(cfg, testLogger()).Run(context.Background(), set)
	if !processing.IsKind(err, processing.KindInvalidSampleCount) {
		t.Errorf("expected invalid-sample-count error, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	set := &FrameSet{Frames: []Frame{
		uniformTestFrame(t, "a", 50, 50, 128),
		uniformTestFrame(t, "b", 50, 50, 128),
	}}
	defer set.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCoordinator(testConfig(), testLogger()).Run(ctx, set)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}
