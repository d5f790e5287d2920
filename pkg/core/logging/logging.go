// Package logging builds the leveled loggers shared by the pipeline components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// New creates a logger at the given level ("debug", "info", "warn", "error").
// Output goes to w as JSON lines; pass nil for a console writer on stderr.
func New(level string, w io.Writer) *log.Logger {
	logger := &log.Logger{
		Level:      parseLevel(level),
		TimeFormat: "15:04:05",
	}
	if w == nil {
		logger.Writer = &log.ConsoleWriter{
			ColorOutput:    isTerminal(),
			EndWithMessage: true,
			Writer:         os.Stderr,
		}
	} else {
		logger.Writer = &log.IOWriter{Writer: w}
	}
	return logger
}

// NewSilent returns a logger that drops everything. Used as the component default.
func NewSilent() *log.Logger {
	return &log.Logger{
		Level:  log.ErrorLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func isTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
