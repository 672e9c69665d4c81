package main

import (
	"context"
	"os"

	"github.com/googol/statsview/internal/logging"
	"github.com/urfave/cli/v3"
)

func main() {
	logger, _ := logging.New(logging.Options{Prefix: "statsview"})
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "statsview",
		Usage:    "Live search-index statistics and story indexing for the Hacker News backend",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Action:   runner.Watch,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
