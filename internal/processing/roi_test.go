package processing

import (
	"context"
	"testing"

	"gridwatch/internal/config"
)

func TestCloseGapsGrowsWithSafetyMargin(t *testing.T) {
	structure := uniformFrame(t, 20, 20, 0)
	setBlock(t, structure, 10, 10, 1, 1, 255)

	out, err := CloseGaps(structure, 2)
	if err != nil {
		t.Fatalf("CloseGaps failed: %v", err)
	}
	defer out.Close()

	// Two dilations grow a pixel to 5x5, one erosion shrinks it to 3x3:
	// net growth of one iteration survives.
	if n := nonZeroCount(t, out); n != 9 {
		t.Errorf("expected 9 foreground pixels, got %d", n)
	}
}

func TestCloseGapsMergesNearbyFragments(t *testing.T) {
	structure := uniformFrame(t, 20, 20, 0)
	setBlock(t, structure, 8, 10, 1, 1, 255)
	setBlock(t, structure, 12, 10, 1, 1, 255)

	out, err := CloseGaps(structure, 2)
	if err != nil {
		t.Fatalf("CloseGaps failed: %v", err)
	}
	defer out.Close()

	if got := pixelAt(t, out, 10, 10); got == 0 {
		t.Error("expected the gap between fragments to be closed")
	}
}

func TestRemoveSpecklesDropsIsolatedPixel(t *testing.T) {
	mask := uniformFrame(t, 20, 20, 0)
	setBlock(t, mask, 10, 10, 1, 1, 255)

	out, err := RemoveSpeckles(mask, 1)
	if err != nil {
		t.Fatalf("RemoveSpeckles failed: %v", err)
	}
	defer out.Close()

	if n := nonZeroCount(t, out); n != 0 {
		t.Errorf("expected speck removed, got %d nonzero pixels", n)
	}
}

func TestRemoveSpecklesKeepsSolidRegion(t *testing.T) {
	mask := uniformFrame(t, 30, 30, 0)
	setBlock(t, mask, 10, 10, 10, 10, 255)

	out, err := RemoveSpeckles(mask, 1)
	if err != nil {
		t.Fatalf("RemoveSpeckles failed: %v", err)
	}
	defer out.Close()

	if n := nonZeroCount(t, out); n != 100 {
		t.Errorf("expected the 10x10 region restored to 100 pixels, got %d", n)
	}
}

func TestMorphologyRejectsBadIterations(t *testing.T) {
	mask := uniformFrame(t, 10, 10, 0)

	if _, err := CloseGaps(mask, 0); err == nil {
		t.Error("CloseGaps should reject zero iterations")
	}
	if _, err := RemoveSpeckles(mask, 0); err == nil {
		t.Error("RemoveSpeckles should reject zero iterations")
	}
}

func TestExtractExcludesStructureKeepsGaps(t *testing.T) {
	// A dark scene crossed by one bright horizontal and one vertical bar,
	// the shape the detector exists to find.
	golden := uniformFrame(t, 200, 200, 40)
	setBlock(t, golden, 0, 99, 200, 3, 230)
	setBlock(t, golden, 99, 0, 3, 200, 230)

	cfg := config.Default().ROI
	cfg.BlurKernel = 3 // keep the bar edges sharp at test scale

	extractor := NewROIExtractor(cfg, testLogger())

	roi, err := extractor.Extract(context.Background(), golden)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer roi.Close()

	if roi.Cols() != 200 || roi.Rows() != 200 {
		t.Fatalf("ROI dimensions should match golden, got %dx%d", roi.Cols(), roi.Rows())
	}

	if got := pixelAt(t, roi, 100, 100); got != 0 {
		t.Errorf("grid crossing should be excluded, got %d", got)
	}
	if got := pixelAt(t, roi, 100, 30); got != 0 {
		t.Errorf("vertical bar should be excluded, got %d", got)
	}
	if got := pixelAt(t, roi, 30, 30); got != 255 {
		t.Errorf("open region should be included, got %d", got)
	}

	included := nonZeroCount(t, roi)
	if included == 0 || included == 200*200 {
		t.Errorf("ROI should exclude the structure but keep the gaps, got %d/%d included",
			included, 200*200)
	}
}

func TestExtractUniformSceneIncludesEverything(t *testing.T) {
	golden := uniformFrame(t, 100, 100, 128)

	extractor := NewROIExtractor(config.Default().ROI, testLogger())

	roi, err := extractor.Extract(context.Background(), golden)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer roi.Close()

	if n := nonZeroCount(t, roi); n != 100*100 {
		t.Errorf("featureless scene should be fully included, got %d/%d", n, 100*100)
	}
}
