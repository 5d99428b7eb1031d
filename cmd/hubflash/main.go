package main

import (
	"log/slog"
	"os"

	"github.com/hubflash/go-hubflash/cmd/hubflash/commands"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
