package main

import (
	"log/slog"

	"github.com/BioHazard786/huddle/cmd"
	"github.com/BioHazard786/huddle/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init(slog.LevelError)
	cmd.Execute()
}
