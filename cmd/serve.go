package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/api"
	"github.com/agentshub/internal/knowledge"
)

// ServeCommand returns the CLI command for starting the web UI and API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the AI Agents Hub web UI and API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the server (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Re-ingest knowledge files when they change under knowledge.docs_dir",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{withQueue: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	server, err := api.NewServer(ctx, rt.Hub(), api.ServerOptions{
		Port:          port,
		JWTSecret:     cfg.Server.JWTSecret,
		RateLimit:     cfg.Server.RateLimit,
		OllamaBaseURL: cfg.Knowledge.LLM.OllamaBaseURL,
		Probes:        rt.Probes(),
		DocsDir:       cfg.Knowledge.DocsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if c.Bool("watch") {
		watcher, err := knowledge.NewWatcher(cfg.Knowledge.DocsDir, 0, rt.reingest)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.Knowledge.DocsDir, err)
		}
		go watcher.Run(ctx)
	}

	fmt.Printf("Starting AI Agents Hub on http://localhost:%d\n", port)
	return server.Start(ctx)
}

// reingest refreshes the knowledge of every agent that lists a changed file.
func (rt *Runtime) reingest(ctx context.Context, changed []string) {
	for _, label := range agents.Labels {
		if !rt.Catalog.Has(label) {
			continue
		}
		a, err := rt.Catalog.Build(label)
		if err != nil {
			continue
		}
		var paths []string
		for _, p := range a.Knowledge {
			if slices.Contains(changed, filepath.Clean(p)) {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			continue
		}
		report, err := rt.Knowledge.Ingest(ctx, a.Scope(), paths...)
		if err != nil {
			log.Error().Err(err).Str("agent", a.Name).Msg("Re-ingest failed")
			continue
		}
		log.Info().
			Str("agent", a.Name).
			Int("added", len(report.Added)).
			Int("chunks", report.Chunks).
			Msg("Re-ingested changed knowledge")
	}
}
