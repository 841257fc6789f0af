// Package logging builds the zerolog loggers used by geoartifacts.
//
// Output goes to stderr. In a terminal a console writer is used unless
// LOG_FORMAT=json; LOG_LEVEL selects the level (default "warn", so the
// library stays quiet inside applications that do not configure it).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger = createDefaultLogger()

// Nop discards everything.
var Nop = zerolog.Nop()

func createDefaultLogger() zerolog.Logger {
	var writer io.Writer = os.Stderr
	if isatty() && os.Getenv("LOG_FORMAT") != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	level := getLogLevel()
	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("component", "geoartifacts").
		Logger()

	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Default returns the package-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// New creates a JSON logger writing to w at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func isatty() bool {
	fileInfo, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}

func getLogLevel() zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("DEBUG") != "" {
			return zerolog.DebugLevel
		}
		return zerolog.WarnLevel
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.WarnLevel
	}
	return level
}
