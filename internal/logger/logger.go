package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the component-tagged logging contract used throughout the
// pipeline. Fields may be nil.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// LevelFromEnv reads LOG_LEVEL and falls back to info. DEBUG=1 forces
// debug output regardless of LOG_LEVEL.
func LevelFromEnv() zerolog.Level {
	if os.Getenv("DEBUG") == "1" {
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
