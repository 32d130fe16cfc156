package pipeline

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/conversion"
	"gridwatch/internal/opencv/safe"
)

// Saver persists the run artifacts: the golden preview, the ROI mask, and
// one final mask per successful frame.
type Saver struct {
	log logger.Logger
}

func NewSaver(log logger.Logger) *Saver {
	return &Saver{log: log}
}

func (s *Saver) Save(result *RunResult, dir string) error {
	if result == nil {
		return fmt.Errorf("no result to save")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := s.writePNG(result.Golden, filepath.Join(dir, "golden.png")); err != nil {
		return err
	}
	if err := s.writePNG(result.ROI, filepath.Join(dir, "roi.png")); err != nil {
		return err
	}

	written := 0
	for _, frame := range result.Frames {
		if frame.Err != nil {
			continue
		}

		name := strings.TrimSuffix(frame.ID, filepath.Ext(frame.ID)) + "_mask.png"
		if err := s.writePNG(frame.FinalMask, filepath.Join(dir, name)); err != nil {
			return err
		}
		written++
	}

	s.log.Info("Saver", "artifacts written", map[string]interface{}{
		"dir":   dir,
		"masks": written,
	})

	return nil
}

func (s *Saver) writePNG(mat *safe.Mat, path string) error {
	img, err := conversion.MatToImage(mat)
	if err != nil {
		return fmt.Errorf("failed to convert %q: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode %q: %w", path, err)
	}

	return nil
}
