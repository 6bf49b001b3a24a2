// Package logging builds the zerolog loggers used by the command line and
// the server.
package logging

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// DefaultLogger creates a new logger with the given app name.
func DefaultLogger(appName string, writer io.Writer) zerolog.Logger {
	logger := zerolog.New(writer).With().Timestamp().Str("app", appName).Logger()
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) == 40 {
				logger = logger.With().Str("commit", s.Value[:7]).Logger()
				break
			}
		}
	}
	return logger
}

// ConsoleLogger writes human readable lines, for interactive use.
func ConsoleLogger(writer io.Writer, noColor bool) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: writer, NoColor: noColor, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
}

// SetLevel sets the global log level if level is not empty.
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
