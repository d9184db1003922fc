package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/db"
	"github.com/castlane/timeline/pkg/config"
	"github.com/castlane/timeline/pkg/logging"
)

const usage = "usage: migrate up | down [steps]"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "up":
		err = db.MigrateUp(cfg.Database.URL)
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil || steps <= 0 {
				fmt.Fprintln(os.Stderr, usage)
				os.Exit(2)
			}
		}
		err = db.MigrateDown(cfg.Database.URL, steps)
		if err == nil {
			logger.Info("Migrations rolled back", zap.Int("steps", steps))
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
}
