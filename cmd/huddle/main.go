package main

import (
	"log/slog"

	"github.com/zakirhyder/huddle/internal/cli"
	"github.com/zakirhyder/huddle/internal/logging"
)

func main() {
	// Keep log noise out of the interactive UI; LOG_LEVEL overrides.
	logging.Init(slog.LevelError)
	cli.Execute()
}
