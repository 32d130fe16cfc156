package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"

	"gridwatch/internal/config"
	"gridwatch/internal/logger"
	"gridwatch/internal/pipeline"
	"gridwatch/internal/processing"
	"gridwatch/internal/shutdown"
)

func main() {
	srcDir := flag.String("src", "", "directory with the input frame set")
	dstDir := flag.String("dst", "", "directory for golden/ROI/mask artifacts")
	flag.Parse()

	if *srcDir == "" || *dstDir == "" {
		fmt.Fprintln(os.Stderr, "usage: gridwatch -src <input dir> -dst <output dir>")
		os.Exit(2)
	}

	runtime.GOMAXPROCS(runtime.NumCPU())

	// A missing .env is fine; environment variables win either way.
	_ = godotenv.Load()

	log := logger.NewConsoleLogger(logger.LevelFromEnv())

	if err := run(*srcDir, *dstDir, log); err != nil {
		log.Error("main", err, nil)
		os.Exit(1)
	}
}

func run(srcDir, dstDir string, log logger.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	log.Info("main", "starting run", map[string]interface{}{
		"src":     srcDir,
		"dst":     dstDir,
		"workers": cfg.Workers,
		"scale":   cfg.Preprocess.ScaleFactor,
	})

	manager := shutdown.NewManager(log)
	manager.Listen()

	set, err := pipeline.NewLoader(log).Load(srcDir)
	if err != nil {
		return err
	}
	manager.Register(set)

	coordinator := pipeline.NewCoordinator(cfg, log)
	result, err := coordinator.Run(manager.Context(), set)
	set.Close()
	if err != nil {
		return err
	}
	manager.Register(result)
	defer result.Close()

	for _, frame := range result.Frames {
		if frame.Err != nil {
			var pe *processing.Error
			if errors.As(frame.Err, &pe) {
				log.Warning("main", "frame failed", map[string]interface{}{
					"frame": pe.Frame,
					"kind":  string(pe.Kind),
					"error": pe.Error(),
				})
			}
		}
	}

	if err := pipeline.NewSaver(log).Save(result, dstDir); err != nil {
		return err
	}

	log.Info("main", "done", map[string]interface{}{
		"succeeded": result.Succeeded(),
		"failed":    result.Failed(),
	})

	return nil
}
