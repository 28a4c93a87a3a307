package logging

import (
	"log/slog"
	"os"
)

// Init installs the default logger. An empty level falls back to LOG_LEVEL.
func Init(level string) {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: ParseLevel(level),
		}),
	)
	slog.SetDefault(logger)
}

// ParseLevel maps a level name to a slog level.
// Anything unrecognised is the production default, errors only.
func ParseLevel(l string) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
