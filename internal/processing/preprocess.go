package processing

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
)

// Preprocessor normalizes raw frames before comparison: grayscale
// reduction, cubic resampling to the working resolution, and per-frame
// contrast stretching.
type Preprocessor struct {
	cfg config.PreprocessConfig
	log logger.Logger
}

func NewPreprocessor(cfg config.PreprocessConfig, log logger.Logger) *Preprocessor {
	return &Preprocessor{cfg: cfg, log: log}
}

// ProcessFrame runs the full normalization chain on one frame. This is the
// unit of work the coordinator fans out per frame.
func (p *Preprocessor) ProcessFrame(ctx context.Context, src *safe.Mat) (*safe.Mat, error) {
	gray, err := p.GrayscaleFrame(ctx, src)
	if err != nil {
		return nil, err
	}

	resized, err := p.ResizeFrame(ctx, gray)
	gray.Close()
	if err != nil {
		return nil, err
	}

	if !p.cfg.AutoContrast {
		return resized, nil
	}

	stretched, err := p.AutoContrastFrame(ctx, resized)
	resized.Close()
	if err != nil {
		return nil, err
	}

	return stretched, nil
}

// GrayscaleFrame reduces a frame to single-channel luminance. Grayscale
// input is cloned unchanged.
func (p *Preprocessor) GrayscaleFrame(ctx context.Context, src *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(src, "grayscale"); err != nil {
		return nil, err
	}

	if src.Channels() == 1 {
		return src.Clone()
	}

	dst := gocv.NewMat()
	srcMat := src.GetMat()

	switch src.Channels() {
	case 3:
		gocv.CvtColor(srcMat, &dst, gocv.ColorBGRToGray)
	case 4:
		temp := gocv.NewMat()
		defer temp.Close()
		gocv.CvtColor(srcMat, &temp, gocv.ColorBGRAToBGR)
		gocv.CvtColor(temp, &dst, gocv.ColorBGRToGray)
	default:
		dst.Close()
		return nil, fmt.Errorf("unsupported channel count for grayscale conversion: %d", src.Channels())
	}

	return safe.Wrap(dst)
}

// ResizeFrame resamples a frame to the configured working resolution with
// cubic interpolation, in either scale-factor or target-size mode.
func (p *Preprocessor) ResizeFrame(ctx context.Context, src *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(src, "resize"); err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	srcMat := src.GetMat()

	if p.cfg.ScaleFactor != 0 {
		gocv.Resize(srcMat, &dst, image.Point{}, p.cfg.ScaleFactor, p.cfg.ScaleFactor, gocv.InterpolationCubic)
	} else {
		if err := safe.ValidateDimensions(p.cfg.TargetWidth, p.cfg.TargetHeight, "resize"); err != nil {
			dst.Close()
			return nil, err
		}
		gocv.Resize(srcMat, &dst, image.Point{X: p.cfg.TargetWidth, Y: p.cfg.TargetHeight}, 0, 0, gocv.InterpolationCubic)
	}

	return safe.Wrap(dst)
}

// AutoContrastFrame stretches the frame so its observed minimum maps to 0
// and its maximum to 255. A flat frame has no defined stretch and is
// rejected as degenerate.
func (p *Preprocessor) AutoContrastFrame(ctx context.Context, src *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(src, "auto-contrast"); err != nil {
		return nil, err
	}
	if src.Channels() != 1 {
		return nil, fmt.Errorf("auto-contrast requires a single-channel frame, got %d channels", src.Channels())
	}

	srcMat := src.GetMat()
	minVal, maxVal, _, _ := gocv.MinMaxIdx(srcMat)
	if minVal == maxVal {
		return nil, NewDegenerateImageError(
			fmt.Sprintf("flat frame: every sample is %g", minVal))
	}

	alpha := 255.0 / (maxVal - minVal)
	beta := -minVal * alpha

	dst := gocv.NewMat()
	srcMat.ConvertToWithParams(&dst, gocv.MatTypeCV8U, alpha, beta)

	return safe.Wrap(dst)
}

// ToGrayscale converts a whole set, failing on the first bad frame.
func (p *Preprocessor) ToGrayscale(ctx context.Context, frames []*safe.Mat) ([]*safe.Mat, error) {
	return p.each(ctx, frames, p.GrayscaleFrame)
}

// Resize resamples a whole set, failing on the first bad frame.
func (p *Preprocessor) Resize(ctx context.Context, frames []*safe.Mat) ([]*safe.Mat, error) {
	return p.each(ctx, frames, p.ResizeFrame)
}

// AutoContrast stretches a whole set, failing on the first bad frame.
func (p *Preprocessor) AutoContrast(ctx context.Context, frames []*safe.Mat) ([]*safe.Mat, error) {
	return p.each(ctx, frames, p.AutoContrastFrame)
}

func (p *Preprocessor) each(
	ctx context.Context,
	frames []*safe.Mat,
	op func(context.Context, *safe.Mat) (*safe.Mat, error),
) ([]*safe.Mat, error) {
	if len(frames) == 0 {
		return nil, NewEmptyInputError("no frames supplied")
	}

	out := make([]*safe.Mat, 0, len(frames))
	for i, frame := range frames {
		result, err := op(ctx, frame)
		if err != nil {
			for _, m := range out {
				m.Close()
			}
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out = append(out, result)
	}

	return out, nil
}
