package processing

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"gridwatch/internal/opencv/safe"
)

// CloseGaps grows foreground regions with k dilations and shrinks them
// with k-1 erosions. Detected line fragments merge into solid regions and
// keep one iteration of growth as a safety margin.
func CloseGaps(src *safe.Mat, iterations int) (*safe.Mat, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("close iterations must be >= 1 (got %d)", iterations)
	}
	if err := safe.ValidateMatForOperation(src, "CloseGaps"); err != nil {
		return nil, err
	}

	return morph(src, iterations, iterations-1)
}

// RemoveSpeckles shrinks foreground regions with k erosions and restores
// them with k dilations. Isolated specks smaller than the kernel footprint
// disappear; surviving regions keep their extent.
func RemoveSpeckles(src *safe.Mat, iterations int) (*safe.Mat, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("speckle iterations must be >= 1 (got %d)", iterations)
	}
	if err := safe.ValidateMatForOperation(src, "RemoveSpeckles"); err != nil {
		return nil, err
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	work := src.GetMat().Clone()
	for i := 0; i < iterations; i++ {
		gocv.Erode(work, &work, kernel)
	}
	for i := 0; i < iterations; i++ {
		gocv.Dilate(work, &work, kernel)
	}

	return safe.Wrap(work)
}

func morph(src *safe.Mat, dilations, erosions int) (*safe.Mat, error) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	work := src.GetMat().Clone()
	for i := 0; i < dilations; i++ {
		gocv.Dilate(work, &work, kernel)
	}
	for i := 0; i < erosions; i++ {
		gocv.Erode(work, &work, kernel)
	}

	return safe.Wrap(work)
}
