package processing

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
)

// MaskCompositor restricts anomaly masks to the ROI and restores them to
// the original input resolution.
type MaskCompositor struct {
	log logger.Logger
}

func NewMaskCompositor(log logger.Logger) *MaskCompositor {
	return &MaskCompositor{log: log}
}

// ApplyROIFrame copies the mask onto a zero canvas wherever the ROI is
// nonzero: excluded pixels become 0, included pixels keep their value.
// Applying the same ROI twice is a no-op.
func (c *MaskCompositor) ApplyROIFrame(ctx context.Context, mask, roi *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateSameShape(mask, roi, "ROI application"); err != nil {
		return nil, NewDimensionMismatchError("mask does not match ROI mask", err)
	}

	out := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), mask.Rows(), mask.Cols(), mask.Type())
	maskMat := mask.GetMat()
	maskMat.CopyToWithMask(&out, roi.GetMat())

	return safe.Wrap(out)
}

// RestoreFrame resizes a mask back to the original input dimensions with
// the same cubic interpolation used during preprocessing. Interpolated
// edges are not strictly binary; consumers must tolerate that.
func (c *MaskCompositor) RestoreFrame(ctx context.Context, mask *safe.Mat, width, height int) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(mask, "resolution restore"); err != nil {
		return nil, err
	}
	if err := safe.ValidateDimensions(width, height, "resolution restore"); err != nil {
		return nil, err
	}

	out := gocv.NewMat()
	gocv.Resize(mask.GetMat(), &out, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationCubic)

	return safe.Wrap(out)
}

// ApplyROI restricts a whole set of masks, failing on the first error.
func (c *MaskCompositor) ApplyROI(ctx context.Context, masks []*safe.Mat, roi *safe.Mat) ([]*safe.Mat, error) {
	if len(masks) == 0 {
		return nil, NewEmptyInputError("no masks to composite")
	}

	out := make([]*safe.Mat, 0, len(masks))
	for _, mask := range masks {
		applied, err := c.ApplyROIFrame(ctx, mask, roi)
		if err != nil {
			for _, m := range out {
				m.Close()
			}
			return nil, err
		}
		out = append(out, applied)
	}

	return out, nil
}

// RestoreResolution resizes a whole set of masks, failing on the first
// error.
func (c *MaskCompositor) RestoreResolution(ctx context.Context, masks []*safe.Mat, width, height int) ([]*safe.Mat, error) {
	if len(masks) == 0 {
		return nil, NewEmptyInputError("no masks to restore")
	}

	out := make([]*safe.Mat, 0, len(masks))
	for _, mask := range masks {
		restored, err := c.RestoreFrame(ctx, mask, width, height)
		if err != nil {
			for _, m := range out {
				m.Close()
			}
			return nil, err
		}
		out = append(out, restored)
	}

	return out, nil
}
