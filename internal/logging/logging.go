package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger. The LOG_LEVEL environment variable
// overrides the fallback level the binary asks for (the server defaults to
// info, the client to error so it never scribbles over the TUI).
func Init(fallback slog.Level) {
	level := fallback

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
