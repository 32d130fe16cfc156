package processing

import (
	"context"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
)

// AnomalyMasker turns the per-pixel distance between a frame and the
// golden image into a binary anomaly mask.
type AnomalyMasker struct {
	cfg     config.AnomalyConfig
	workers int
	log     logger.Logger
}

func NewAnomalyMasker(cfg config.AnomalyConfig, workers int, log logger.Logger) *AnomalyMasker {
	if workers < 1 {
		workers = 1
	}
	return &AnomalyMasker{cfg: cfg, workers: workers, log: log}
}

// MaskFrame computes |frame - golden| and thresholds it: a difference at
// or above the configured threshold becomes 255, everything else 0.
func (a *AnomalyMasker) MaskFrame(ctx context.Context, frame, golden *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateSameShape(frame, golden, "anomaly masking"); err != nil {
		return nil, NewDimensionMismatchError("frame does not match golden image", err)
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(frame.GetMat(), golden.GetMat(), &diff)

	if diff.Channels() == 3 {
		gray := gocv.NewMat()
		gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
		diff.Close()
		diff = gray
	}

	// Binary threshold keeps strictly-greater pixels, so shift by one to
	// flag differences equal to the threshold as well.
	mask := gocv.NewMat()
	gocv.Threshold(diff, &mask, float32(a.cfg.DiffThreshold-1), 255, gocv.ThresholdBinary)

	wrapped, err := safe.Wrap(mask)
	if err != nil {
		return nil, err
	}

	if a.cfg.SpeckleIterations > 0 {
		cleaned, err := RemoveSpeckles(wrapped, a.cfg.SpeckleIterations)
		wrapped.Close()
		if err != nil {
			return nil, err
		}
		return cleaned, nil
	}

	return wrapped, nil
}

// ComputeMasks masks a whole set against the golden image with bounded
// parallelism. Every frame is independent; the first failure aborts the
// batch. Callers needing per-frame failure isolation drive MaskFrame
// themselves.
func (a *AnomalyMasker) ComputeMasks(ctx context.Context, frames []*safe.Mat, golden *safe.Mat) ([]*safe.Mat, error) {
	if len(frames) == 0 {
		return nil, NewEmptyInputError("no frames to mask")
	}

	masks := make([]*safe.Mat, len(frames))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, frame := range frames {
		g.Go(func() error {
			mask, err := a.MaskFrame(ctx, frame, golden)
			if err != nil {
				return err
			}
			masks[i] = mask
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, m := range masks {
			if m != nil {
				m.Close()
			}
		}
		return nil, err
	}

	return masks, nil
}
