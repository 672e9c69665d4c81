package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file (default: ./statsview.yaml when present)",
			Sources: cli.EnvVars("STATSVIEW_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Backend base URL, e.g. http://localhost:8080",
			Sources: cli.EnvVars("STATSVIEW_BASE_URL"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json, logfmt",
		},
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Open the live stats dashboard (default)",
		Action: r.Watch,
	}
}

func tailCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tail",
		Usage:  "Print connection changes and stats snapshots until interrupted",
		Action: r.Tail,
	}
}

func indexCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Submit story ids for indexing",
		ArgsUsage: "ID...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Search query the stories were selected from",
			},
		},
		Action: r.Index,
	}
}
