package processing

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
)

func testLogger() logger.Logger {
	return logger.NewZerolog(io.Discard, zerolog.Disabled)
}

func uniformFrame(t *testing.T, rows, cols int, value uint8) *safe.Mat {
	t.Helper()

	mat, err := safe.NewMatFromScalar(rows, cols, gocv.MatTypeCV8UC1, float64(value))
	if err != nil {
		t.Fatalf("failed to create frame: %v", err)
	}
	t.Cleanup(mat.Close)

	return mat
}

// gradientFrame fills a frame with (row+col) mod 256 so it has a wide,
// deterministic value range.
func gradientFrame(t *testing.T, rows, cols int) *safe.Mat {
	t.Helper()

	mat, err := safe.NewMat(rows, cols, gocv.MatTypeCV8UC1)
	if err != nil {
		t.Fatalf("failed to create frame: %v", err)
	}
	t.Cleanup(mat.Close)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if err := mat.SetUCharAt(y, x, uint8((y+x)%256)); err != nil {
				t.Fatalf("failed to set pixel: %v", err)
			}
		}
	}

	return mat
}

func setBlock(t *testing.T, mat *safe.Mat, x0, y0, w, h int, value uint8) {
	t.Helper()

	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			if err := mat.SetUCharAt(y, x, value); err != nil {
				t.Fatalf("failed to set pixel (%d,%d): %v", x, y, err)
			}
		}
	}
}

func nonZeroCount(t *testing.T, mat *safe.Mat) int {
	t.Helper()

	return gocv.CountNonZero(mat.GetMat())
}

func pixelAt(t *testing.T, mat *safe.Mat, x, y int) uint8 {
	t.Helper()

	value, err := mat.GetUCharAt(y, x)
	if err != nil {
		t.Fatalf("failed to read pixel (%d,%d): %v", x, y, err)
	}
	return value
}
