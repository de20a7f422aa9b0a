// Package logging builds the structured loggers used across akv.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var levels = map[string]log.Level{
	"trace":   log.TraceLevel,
	"debug":   log.DebugLevel,
	"info":    log.InfoLevel,
	"warn":    log.WarnLevel,
	"warning": log.WarnLevel,
	"error":   log.ErrorLevel,
}

// New returns a logger writing to w at the given level.
// An empty level means "info"; an empty format means console output.
func New(level, format string, w io.Writer) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	if level == "" {
		level = "info"
	}

	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	logger := &log.Logger{Level: lvl}
	switch strings.ToLower(format) {
	case "", FormatConsole:
		logger.Writer = &log.ConsoleWriter{Writer: w}
	case FormatJSON:
		logger.Writer = &log.IOWriter{Writer: w}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}
