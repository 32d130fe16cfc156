package processing

import (
	"context"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
)

// LineSegment is a detected straight-line fragment of the grid structure.
// Segments only live long enough to be rasterized into the structure mask.
type LineSegment struct {
	P1 image.Point
	P2 image.Point
}

// ROIExtractor derives the region-of-interest mask from the golden image.
// The scene's grid/spacer lines are a fixed fixture, not an anomaly, so
// their detected footprint (grown for safety margin) is excluded and the
// gaps between them become the usable imaging region.
type ROIExtractor struct {
	cfg config.ROIConfig
	log logger.Logger
}

func NewROIExtractor(cfg config.ROIConfig, log logger.Logger) *ROIExtractor {
	return &ROIExtractor{cfg: cfg, log: log}
}

// Extract produces the binary ROI mask: 255 where anomalies may be
// reported, 0 over the detected structure.
func (r *ROIExtractor) Extract(ctx context.Context, golden *safe.Mat) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(golden, "ROI extraction"); err != nil {
		return nil, err
	}

	edges, err := r.detectEdges(golden)
	if err != nil {
		return nil, err
	}
	defer edges.Close()

	segments := r.detectSegments(edges)

	structure, err := r.rasterizeSegments(segments, golden.Rows(), golden.Cols())
	if err != nil {
		return nil, err
	}
	defer structure.Close()

	closed, err := CloseGaps(structure, r.cfg.CloseIterations)
	if err != nil {
		return nil, err
	}
	defer closed.Close()

	roi := gocv.NewMat()
	gocv.Threshold(closed.GetMat(), &roi, float32(r.cfg.BinarizeThreshold), 255, gocv.ThresholdBinaryInv)

	r.log.Debug("ROIExtractor", "ROI mask extracted", map[string]interface{}{
		"segments":       len(segments),
		"included_px":    gocv.CountNonZero(roi),
		"total_px":       golden.Rows() * golden.Cols(),
		"close_passes":   r.cfg.CloseIterations,
		"vote_threshold": r.cfg.HoughVotes,
	})

	return safe.Wrap(roi)
}

// detectEdges blurs local texture away and runs Canny over the result.
func (r *ROIExtractor) detectEdges(golden *safe.Mat) (*safe.Mat, error) {
	blurred := gocv.NewMat()
	defer blurred.Close()

	kernel := image.Point{X: r.cfg.BlurKernel, Y: r.cfg.BlurKernel}
	gocv.Blur(golden.GetMat(), &blurred, kernel)

	edges := gocv.NewMat()
	gocv.Canny(blurred, &edges, r.cfg.CannyLow, r.cfg.CannyHigh)

	return safe.Wrap(edges)
}

// detectSegments runs the probabilistic Hough transform over the edge map.
func (r *ROIExtractor) detectSegments(edges *safe.Mat) []LineSegment {
	lines := gocv.NewMat()
	defer lines.Close()

	gocv.HoughLinesPWithParams(
		edges.GetMat(), &lines,
		r.cfg.HoughRho, math.Pi/180, r.cfg.HoughVotes,
		r.cfg.HoughMinLength, r.cfg.HoughMaxGap,
	)

	segments := make([]LineSegment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		pts := lines.GetVeciAt(i, 0)
		segments = append(segments, LineSegment{
			P1: image.Point{X: int(pts[0]), Y: int(pts[1])},
			P2: image.Point{X: int(pts[2]), Y: int(pts[3])},
		})
	}

	return segments
}

// rasterizeSegments draws every segment as a 1-px white line on a black
// canvas the size of the golden image.
func (r *ROIExtractor) rasterizeSegments(segments []LineSegment, rows, cols int) (*safe.Mat, error) {
	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for _, seg := range segments {
		gocv.Line(&canvas, seg.P1, seg.P2, white, 1)
	}

	return safe.Wrap(canvas)
}
