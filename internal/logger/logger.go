package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"example.com/h2mux/internal/config"
)

// New builds the process logger from configuration. Output goes to stderr.
func New(cfg *config.LoggingConfig) (zerolog.Logger, error) {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput builds a logger writing to out.
func NewWithOutput(cfg *config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	if cfg == nil {
		return zerolog.Nop(), fmt.Errorf("logging configuration cannot be nil")
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	var w io.Writer = out
	if cfg.Format == config.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// parseLevel maps the closed set of config levels onto zerolog levels.
func parseLevel(l config.LogLevel) (zerolog.Level, error) {
	switch l {
	case config.LogLevelDebug:
		return zerolog.DebugLevel, nil
	case config.LogLevelInfo:
		return zerolog.InfoLevel, nil
	case config.LogLevelWarning:
		return zerolog.WarnLevel, nil
	case config.LogLevelError:
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", l)
	}
}
