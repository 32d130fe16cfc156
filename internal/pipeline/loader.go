package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"gridwatch/internal/logger"
	"gridwatch/internal/opencv/safe"
	"gridwatch/internal/processing"
)

// Frame is one decoded input image, identified by its source filename.
type Frame struct {
	ID  string
	Mat *safe.Mat
}

// FrameSet is the ordered input to a run. Order matters only insofar as
// the first frames seed the golden image.
type FrameSet struct {
	Frames []Frame
}

func (s *FrameSet) Close() {
	for _, frame := range s.Frames {
		if frame.Mat != nil {
			frame.Mat.Close()
		}
	}
	s.Frames = nil
}

// Shutdown satisfies the shutdown manager contract.
func (s *FrameSet) Shutdown() {
	s.Close()
}

// Loader scans a directory for encodable image files and decodes them into
// the pipeline's pixel buffers.
type Loader struct {
	log logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	return &Loader{log: log}
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// Load reads every supported image in dir, sorted by filename. An empty or
// image-free directory is an empty-input error.
func (l *Loader) Load(dir string) (*FrameSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	set := &FrameSet{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		mat := gocv.IMRead(path, gocv.IMReadColor)
		if mat.Empty() {
			set.Close()
			return nil, fmt.Errorf("failed to decode image %q", path)
		}

		wrapped, err := safe.Wrap(mat)
		if err != nil {
			mat.Close()
			set.Close()
			return nil, fmt.Errorf("failed to wrap image %q: %w", path, err)
		}

		set.Frames = append(set.Frames, Frame{ID: entry.Name(), Mat: wrapped})
	}

	if len(set.Frames) == 0 {
		return nil, processing.NewEmptyInputError(
			fmt.Sprintf("no images found in %q", dir))
	}

	l.log.Info("Loader", "frame set loaded", map[string]interface{}{
		"dir":    dir,
		"frames": len(set.Frames),
	})

	return set, nil
}
