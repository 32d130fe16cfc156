package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
	"gridwatch/internal/processing"
)

// FrameOutcome is the terminal result for one input frame: either its
// final mask at original resolution, or the isolated error that stopped
// it.
type FrameOutcome struct {
	ID        string
	FinalMask *safe.Mat
	Err       error
}

// RunResult bundles the run artifacts. The caller owns the Mats and must
// Close the result when done with them.
type RunResult struct {
	Golden *safe.Mat
	ROI    *safe.Mat
	Frames []FrameOutcome
}

func (r *RunResult) Succeeded() int {
	n := 0
	for _, f := range r.Frames {
		if f.Err == nil {
			n++
		}
	}
	return n
}

func (r *RunResult) Failed() int {
	return len(r.Frames) - r.Succeeded()
}

func (r *RunResult) Close() {
	if r.Golden != nil {
		r.Golden.Close()
		r.Golden = nil
	}
	if r.ROI != nil {
		r.ROI.Close()
		r.ROI = nil
	}
	for i := range r.Frames {
		if r.Frames[i].FinalMask != nil {
			r.Frames[i].FinalMask.Close()
			r.Frames[i].FinalMask = nil
		}
	}
}

// Shutdown satisfies the shutdown manager contract.
func (r *RunResult) Shutdown() {
	r.Close()
}

// Coordinator drives a full detection run: parallel preprocessing, the
// golden-then-ROI sequential barriers, and the parallel per-frame masking
// fan-out. Per-frame failures are isolated and reported per frame; only
// set-level violations abort the run.
type Coordinator struct {
	cfg        *config.Config
	log        logger.Logger
	pre        *processing.Preprocessor
	golden     *processing.GoldenSynthesizer
	roi        *processing.ROIExtractor
	masker     *processing.AnomalyMasker
	compositor *processing.MaskCompositor
}

func NewCoordinator(cfg *config.Config, log logger.Logger) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		log:        log,
		pre:        processing.NewPreprocessor(cfg.Preprocess, log),
		golden:     processing.NewGoldenSynthesizer(log),
		roi:        processing.NewROIExtractor(cfg.ROI, log),
		masker:     processing.NewAnomalyMasker(cfg.Anomaly, cfg.Workers, log),
		compositor: processing.NewMaskCompositor(log),
	}
}

func (c *Coordinator) Run(ctx context.Context, set *FrameSet) (*RunResult, error) {
	started := time.Now()

	if set == nil || len(set.Frames) == 0 {
		return nil, processing.NewEmptyInputError("frame set is empty")
	}

	first := set.Frames[0].Mat
	for _, frame := range set.Frames[1:] {
		if err := safe.ValidateSameShape(first, frame.Mat, "run validation"); err != nil {
			return nil, processing.NewDimensionMismatchError("input frames differ in shape", err)
		}
	}

	origWidth := first.Cols()
	origHeight := first.Rows()

	result := &RunResult{Frames: make([]FrameOutcome, len(set.Frames))}
	for i, frame := range set.Frames {
		result.Frames[i].ID = frame.ID
	}

	preprocessed, err := c.preprocessAll(ctx, set, result)
	if err != nil {
		result.Close()
		return nil, err
	}
	defer func() {
		for _, m := range preprocessed {
			if m != nil {
				m.Close()
			}
		}
	}()

	survivors := make([]*safe.Mat, 0, len(preprocessed))
	for _, m := range preprocessed {
		if m != nil {
			survivors = append(survivors, m)
		}
	}
	if len(survivors) == 0 {
		result.Close()
		return nil, processing.NewEmptyInputError("no frames survived preprocessing")
	}

	golden, err := c.golden.Synthesize(ctx, survivors, c.cfg.Golden.SampleCount)
	if err != nil {
		result.Close()
		return nil, err
	}
	result.Golden = golden

	roi, err := c.roi.Extract(ctx, golden)
	if err != nil {
		result.Close()
		return nil, err
	}
	result.ROI = roi

	if err := c.maskAll(ctx, preprocessed, result, origWidth, origHeight); err != nil {
		result.Close()
		return nil, err
	}

	c.log.Info("Coordinator", "run complete", map[string]interface{}{
		"frames":    len(set.Frames),
		"succeeded": result.Succeeded(),
		"failed":    result.Failed(),
		"elapsed":   time.Since(started).String(),
	})

	return result, nil
}

// preprocessAll normalizes every frame in parallel. A failed frame is
// recorded in its outcome and leaves a nil slot; cancellation aborts the
// whole run.
func (c *Coordinator) preprocessAll(ctx context.Context, set *FrameSet, result *RunResult) ([]*safe.Mat, error) {
	preprocessed := make([]*safe.Mat, len(set.Frames))

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, frame := range set.Frames {
		g.Go(func() error {
			out, err := c.pre.ProcessFrame(ctx, frame.Mat)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				result.Frames[i].Err = processing.NewFrameError(frame.ID, err)
				c.log.Warning("Coordinator", "frame dropped during preprocessing", map[string]interface{}{
					"frame": frame.ID,
					"error": err.Error(),
				})
				return nil
			}
			preprocessed[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, m := range preprocessed {
			if m != nil {
				m.Close()
			}
		}
		return nil, err
	}

	return preprocessed, nil
}

// maskAll runs the per-frame anomaly stage for every surviving frame in
// parallel: difference mask, ROI intersection, resolution restore.
func (c *Coordinator) maskAll(ctx context.Context, preprocessed []*safe.Mat, result *RunResult, width, height int) error {
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i := range preprocessed {
		if preprocessed[i] == nil {
			continue
		}

		g.Go(func() error {
			final, err := c.maskFrame(ctx, preprocessed[i], result.Golden, result.ROI, width, height)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				result.Frames[i].Err = processing.NewFrameError(result.Frames[i].ID, err)
				c.log.Warning("Coordinator", "frame failed during masking", map[string]interface{}{
					"frame": result.Frames[i].ID,
					"error": err.Error(),
				})
				return nil
			}
			result.Frames[i].FinalMask = final
			return nil
		})
	}

	return g.Wait()
}

func (c *Coordinator) maskFrame(ctx context.Context, frame, golden, roi *safe.Mat, width, height int) (*safe.Mat, error) {
	mask, err := c.masker.MaskFrame(ctx, frame, golden)
	if err != nil {
		return nil, err
	}

	applied, err := c.compositor.ApplyROIFrame(ctx, mask, roi)
	mask.Close()
	if err != nil {
		return nil, err
	}

	final, err := c.compositor.RestoreFrame(ctx, applied, width, height)
	applied.Close()
	if err != nil {
		return nil, err
	}

	return final, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
