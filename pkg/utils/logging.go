package utils

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel parses a configuration string into a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// NewLogger builds a text-handler slog.Logger writing to output at the given
// level. Unknown levels fall back to INFO so a typo in configuration never
// silences logging.
func NewLogger(level string, output io.Writer) *slog.Logger {
	parsed, err := ParseLogLevel(level)
	if err != nil {
		parsed = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: parsed}))
}
