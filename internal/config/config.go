package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config carries every tuned constant of the pipeline as a named,
// validated field. Defaults reproduce the production tuning; any field can
// be overridden through a GRIDWATCH_* environment variable.
type Config struct {
	// Workers bounds the parallel per-frame stages.
	Workers int

	Preprocess PreprocessConfig
	Golden     GoldenConfig
	ROI        ROIConfig
	Anomaly    AnomalyConfig
}

// PreprocessConfig selects exactly one resize mode: a uniform scale factor
// (ScaleFactor > 0, targets zero) or absolute target dimensions
// (ScaleFactor == 0, targets > 0).
type PreprocessConfig struct {
	ScaleFactor  float64
	TargetWidth  int
	TargetHeight int
	AutoContrast bool
}

type GoldenConfig struct {
	// SampleCount is the number of frames seeding the golden image;
	// negative means the whole set.
	SampleCount int
}

type ROIConfig struct {
	BlurKernel        int
	CannyLow          float32
	CannyHigh         float32
	HoughRho          float32
	HoughVotes        int
	HoughMinLength    float32
	HoughMaxGap       float32
	CloseIterations   int
	BinarizeThreshold int
}

type AnomalyConfig struct {
	DiffThreshold     int
	SpeckleIterations int
}

func Default() *Config {
	return &Config{
		Workers: runtime.NumCPU(),
		Preprocess: PreprocessConfig{
			ScaleFactor:  0.125,
			AutoContrast: true,
		},
		Golden: GoldenConfig{
			SampleCount: -1,
		},
		ROI: ROIConfig{
			BlurKernel:        15,
			CannyLow:          12,
			CannyHigh:         24,
			HoughRho:          1,
			HoughVotes:        50,
			HoughMinLength:    5,
			HoughMaxGap:       50,
			CloseIterations:   7,
			BinarizeThreshold: 125,
		},
		Anomaly: AnomalyConfig{
			DiffThreshold:     32,
			SpeckleIterations: 0,
		},
	}
}

// LoadFromEnv builds a configuration from defaults plus GRIDWATCH_*
// overrides and validates the result.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	cfg.Workers = intOrDefault("GRIDWATCH_WORKERS", cfg.Workers)

	cfg.Preprocess.ScaleFactor = floatOrDefault("GRIDWATCH_SCALE", cfg.Preprocess.ScaleFactor)
	cfg.Preprocess.TargetWidth = intOrDefault("GRIDWATCH_TARGET_WIDTH", cfg.Preprocess.TargetWidth)
	cfg.Preprocess.TargetHeight = intOrDefault("GRIDWATCH_TARGET_HEIGHT", cfg.Preprocess.TargetHeight)
	cfg.Preprocess.AutoContrast = boolOrDefault("GRIDWATCH_AUTOCONTRAST", cfg.Preprocess.AutoContrast)

	cfg.Golden.SampleCount = intOrDefault("GRIDWATCH_GOLDEN_SAMPLES", cfg.Golden.SampleCount)

	cfg.ROI.BlurKernel = intOrDefault("GRIDWATCH_BLUR_KERNEL", cfg.ROI.BlurKernel)
	cfg.ROI.CannyLow = float32(floatOrDefault("GRIDWATCH_CANNY_LOW", float64(cfg.ROI.CannyLow)))
	cfg.ROI.CannyHigh = float32(floatOrDefault("GRIDWATCH_CANNY_HIGH", float64(cfg.ROI.CannyHigh)))
	cfg.ROI.HoughRho = float32(floatOrDefault("GRIDWATCH_HOUGH_RHO", float64(cfg.ROI.HoughRho)))
	cfg.ROI.HoughVotes = intOrDefault("GRIDWATCH_HOUGH_VOTES", cfg.ROI.HoughVotes)
	cfg.ROI.HoughMinLength = float32(floatOrDefault("GRIDWATCH_HOUGH_MIN_LENGTH", float64(cfg.ROI.HoughMinLength)))
	cfg.ROI.HoughMaxGap = float32(floatOrDefault("GRIDWATCH_HOUGH_MAX_GAP", float64(cfg.ROI.HoughMaxGap)))
	cfg.ROI.CloseIterations = intOrDefault("GRIDWATCH_CLOSE_ITERATIONS", cfg.ROI.CloseIterations)
	cfg.ROI.BinarizeThreshold = intOrDefault("GRIDWATCH_ROI_THRESHOLD", cfg.ROI.BinarizeThreshold)

	cfg.Anomaly.DiffThreshold = intOrDefault("GRIDWATCH_DIFF_THRESHOLD", cfg.Anomaly.DiffThreshold)
	cfg.Anomaly.SpeckleIterations = intOrDefault("GRIDWATCH_SPECKLE_ITERATIONS", cfg.Anomaly.SpeckleIterations)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}

	if err := c.Preprocess.validate(); err != nil {
		return err
	}

	if c.Golden.SampleCount == 0 {
		return fmt.Errorf("golden sample count must be positive or negative-for-all (got 0)")
	}

	if err := c.ROI.validate(); err != nil {
		return err
	}

	if c.Anomaly.DiffThreshold < 1 || c.Anomaly.DiffThreshold > 254 {
		return fmt.Errorf("diff threshold must be in [1, 254] (got %d)", c.Anomaly.DiffThreshold)
	}
	if c.Anomaly.SpeckleIterations < 0 {
		return fmt.Errorf("speckle iterations must be >= 0 (got %d)", c.Anomaly.SpeckleIterations)
	}

	return nil
}

func (p PreprocessConfig) validate() error {
	scaled := p.ScaleFactor != 0
	sized := p.TargetWidth != 0 || p.TargetHeight != 0

	switch {
	case scaled && sized:
		return fmt.Errorf("scale factor and target size are mutually exclusive")
	case !scaled && !sized:
		return fmt.Errorf("either scale factor or target size must be set")
	case scaled && (p.ScaleFactor < 0 || p.ScaleFactor > 8):
		return fmt.Errorf("scale factor must be in (0, 8] (got %g)", p.ScaleFactor)
	case sized && (p.TargetWidth <= 0 || p.TargetHeight <= 0):
		return fmt.Errorf("target size must be positive in both dimensions (got %dx%d)",
			p.TargetWidth, p.TargetHeight)
	}

	return nil
}

func (r ROIConfig) validate() error {
	if r.BlurKernel < 3 || r.BlurKernel%2 == 0 {
		return fmt.Errorf("blur kernel must be odd and >= 3 (got %d)", r.BlurKernel)
	}
	if r.CannyLow <= 0 || r.CannyHigh <= r.CannyLow {
		return fmt.Errorf("canny thresholds must satisfy 0 < low < high (got %g/%g)",
			r.CannyLow, r.CannyHigh)
	}
	if r.HoughRho <= 0 {
		return fmt.Errorf("hough rho must be > 0 (got %g)", r.HoughRho)
	}
	if r.HoughVotes < 1 {
		return fmt.Errorf("hough vote threshold must be >= 1 (got %d)", r.HoughVotes)
	}
	if r.HoughMinLength < 0 || r.HoughMaxGap < 0 {
		return fmt.Errorf("hough segment length and gap must be >= 0 (got %g/%g)",
			r.HoughMinLength, r.HoughMaxGap)
	}
	if r.CloseIterations < 1 {
		return fmt.Errorf("close iterations must be >= 1 (got %d)", r.CloseIterations)
	}
	if r.BinarizeThreshold < 1 || r.BinarizeThreshold > 254 {
		return fmt.Errorf("binarize threshold must be in [1, 254] (got %d)", r.BinarizeThreshold)
	}
	return nil
}

func intOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func floatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func boolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}
