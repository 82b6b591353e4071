package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/agentshub/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "agentshub",
		Usage:   "AI Agents Hub: chat, knowledge, code review and adaptive learning agents",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./agentshub.toml, then ~/.agentshub.toml)",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.AskCommand(),
			cmd.ReviewCommand(),
			cmd.AnalyzeCommand(),
			cmd.LearnCommand(),
			cmd.IngestCommand(),
			cmd.WorkerCommand(),
			cmd.SessionsCommand(),
			cmd.PromptsCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
