package config

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogging installs a text slog handler writing to w as the default logger.
func InitLogging(w io.Writer, level string) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	slog.SetDefault(slog.New(handler))
}
