package config

import (
	"fmt"
	"log/slog"
)

// Supported log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a log level name onto its slog level
func ParseLevel(name string) (slog.Level, error) {
	level, ok := logLevels[name]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", name)
	}
	return level, nil
}

func validateLogFormat(format string) error {
	switch format {
	case LogFormatText, LogFormatJSON:
		return nil
	}
	return fmt.Errorf("unsupported log format '%s': supported formats are text, json", format)
}
