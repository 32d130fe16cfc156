package processing

import (
	"context"
	"testing"

	"gridwatch/internal/config"
	"gridwatch/internal/opencv/safe"
)

func TestMaskFrameSelfDiffIsAllZero(t *testing.T) {
	frame := gradientFrame(t, 30, 30)
	masker := NewAnomalyMasker(config.AnomalyConfig{DiffThreshold: 32}, 1, testLogger())

	mask, err := masker.MaskFrame(context.Background(), frame, frame)
	if err != nil {
		t.Fatalf("MaskFrame failed: %v", err)
	}
	defer mask.Close()

	if n := nonZeroCount(t, mask); n != 0 {
		t.Errorf("expected all-zero mask, got %d nonzero pixels", n)
	}
}

func TestMaskFrameFlagsExactThresholdDifference(t *testing.T) {
	golden := uniformFrame(t, 20, 20, 100)
	frame := uniformFrame(t, 20, 20, 100)
	setBlock(t, frame, 3, 4, 1, 1, 132) // difference of exactly the threshold
	setBlock(t, frame, 7, 9, 1, 1, 131) // one below the threshold

	masker := NewAnomalyMasker(config.AnomalyConfig{DiffThreshold: 32}, 1, testLogger())

	mask, err := masker.MaskFrame(context.Background(), frame, golden)
	if err != nil {
		t.Fatalf("MaskFrame failed: %v", err)
	}
	defer mask.Close()

	if n := nonZeroCount(t, mask); n != 1 {
		t.Fatalf("expected exactly 1 flagged pixel, got %d", n)
	}
	if got := pixelAt(t, mask, 3, 4); got != 255 {
		t.Errorf("expected 255 at the threshold pixel, got %d", got)
	}
	if got := pixelAt(t, mask, 7, 9); got != 0 {
		t.Errorf("expected 0 below the threshold, got %d", got)
	}
}

func TestMaskFrameShapeMismatch(t *testing.T) {
	golden := uniformFrame(t, 20, 20, 100)
	frame := uniformFrame(t, 10, 20, 100)

	masker := NewAnomalyMasker(config.AnomalyConfig{DiffThreshold: 32}, 1, testLogger())

	_, err := masker.MaskFrame(context.Background(), frame, golden)
	if !IsKind(err, KindDimensionMismatch) {
		t.Errorf("expected dimension_mismatch kind, got %v", err)
	}
}

func TestMaskFrameSpeckleCleanup(t *testing.T) {
	golden := uniformFrame(t, 20, 20, 0)
	frame := uniformFrame(t, 20, 20, 0)
	setBlock(t, frame, 10, 10, 1, 1, 255)

	masker := NewAnomalyMasker(config.AnomalyConfig{DiffThreshold: 32, SpeckleIterations: 1}, 1, testLogger())

	mask, err := masker.MaskFrame(context.Background(), frame, golden)
	if err != nil {
		t.Fatalf("MaskFrame failed: %v", err)
	}
	defer mask.Close()

	if n := nonZeroCount(t, mask); n != 0 {
		t.Errorf("expected lone speck removed, got %d nonzero pixels", n)
	}
}

func TestComputeMasks(t *testing.T) {
	golden := uniformFrame(t, 20, 20, 100)
	clean := uniformFrame(t, 20, 20, 100)
	dirty := uniformFrame(t, 20, 20, 100)
	setBlock(t, dirty, 5, 5, 4, 4, 200)

	masker := NewAnomalyMasker(config.AnomalyConfig{DiffThreshold: 32}, 4, testLogger())

	masks, err := masker.ComputeMasks(context.Background(), []*safe.Mat{clean, dirty}, golden)
	if err != nil {
		t.Fatalf("ComputeMasks failed: %v", err)
	}
	for _, m := range masks {
		defer m.Close()
	}

	if n := nonZeroCount(t, masks[0]); n != 0 {
		t.Errorf("clean frame: expected 0 nonzero pixels, got %d", n)
	}
	if n := nonZeroCount(t, masks[1]); n != 16 {
		t.Errorf("dirty frame: expected 16 nonzero pixels, got %d", n)
	}
}

func TestComputeMasksEmptySet(t *testing.T) {
	golden := uniformFrame(t, 20, 20, 100)
	masker := NewAnomalyMasker(config.AnomalyConfig{DiffThreshold: 32}, 1, testLogger())

	_, err := masker.ComputeMasks(context.Background(), nil, golden)
	if !IsKind(err, KindEmptyInput) {
		t.Errorf("expected empty_input kind, got %v", err)
	}
}
