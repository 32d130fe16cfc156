package processing

import (
	"context"

	"gocv.io/x/gocv"

	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
)

// GoldenSynthesizer composites a prefix of the frame set into the averaged
// reference image every later stage compares against.
type GoldenSynthesizer struct {
	log logger.Logger
}

func NewGoldenSynthesizer(log logger.Logger) *GoldenSynthesizer {
	return &GoldenSynthesizer{log: log}
}

// Synthesize averages the first count frames per pixel. A negative count
// means the whole set. The sum is accumulated at float32 depth and
// converted back to 8-bit once at the end, so no intermediate overflows or
// truncates.
func (g *GoldenSynthesizer) Synthesize(ctx context.Context, frames []*safe.Mat, count int) (*safe.Mat, error) {
	if len(frames) == 0 {
		return nil, NewEmptyInputError("no frames to synthesize golden image from")
	}

	if count < 0 {
		count = len(frames)
	}
	if count < 1 || count > len(frames) {
		return nil, NewInvalidSampleCountError(count, len(frames))
	}

	first := frames[0]
	if err := safe.ValidateMatForOperation(first, "golden synthesis"); err != nil {
		return nil, err
	}
	for _, frame := range frames[1:count] {
		if err := safe.ValidateSameShape(first, frame, "golden synthesis"); err != nil {
			return nil, NewDimensionMismatchError("frames in golden sample differ", err)
		}
	}

	accType := gocv.MatTypeCV32FC1
	if first.Channels() == 3 {
		accType = gocv.MatTypeCV32FC3
	}

	acc := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), first.Rows(), first.Cols(), accType)
	defer acc.Close()

	weight := 1.0 / float64(count)
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		widened := gocv.NewMat()
		frames[i].GetMat().ConvertTo(&widened, gocv.MatTypeCV32F)
		gocv.AddWeighted(acc, 1, widened, weight, 0, &acc)
		widened.Close()
	}

	golden := gocv.NewMat()
	acc.ConvertTo(&golden, gocv.MatTypeCV8U)

	g.log.Debug("GoldenSynthesizer", "golden image synthesized", map[string]interface{}{
		"samples": count,
		"width":   first.Cols(),
		"height":  first.Rows(),
	})

	return safe.Wrap(golden)
}
