package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/jobqueue"
)

// IngestCommand returns the ingest command
func IngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load documents into an agent's knowledge namespace",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "agent",
				Aliases: []string{"a"},
				Usage:   "Agent whose namespace receives the documents",
				Value:   agents.LabelKnowledge,
			},
			&cli.BoolFlag{
				Name:  "queue",
				Usage: "Enqueue a background job instead of ingesting inline",
			},
		},
		ArgsUsage: "[PATH...] (defaults to the agent's own knowledge files)",
		Action:    runIngest,
	}
}

func runIngest(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer startRun(cfg, "ingest")()

	queued := c.Bool("queue")
	if queued && cfg.JobQueue.DatabaseURL == "" {
		return errors.New("--queue needs jobqueue.database_url")
	}

	ctx := c.Context
	rt, err := newRuntime(ctx, cfg, runtimeOptions{withQueue: queued, skipSessions: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	label := c.String("agent")
	paths := c.Args().Slice()
	if len(paths) == 0 {
		a, err := rt.Catalog.Build(label)
		if err != nil {
			return err
		}
		paths = a.Knowledge
	}
	if len(paths) == 0 {
		return fmt.Errorf("%s has no knowledge files; pass paths explicitly", label)
	}

	out, err := rt.Hub().Ingest(ctx, label, paths)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if out.Queued {
		fmt.Printf("Queued ingest job %d\n", out.JobID)
		return nil
	}

	r := out.Report
	fmt.Printf("Namespace %s: %d added, %d unchanged, %d missing, %d chunks\n",
		r.Namespace, len(r.Added), len(r.Skipped), len(r.Missing), r.Chunks)
	for _, m := range r.Missing {
		fmt.Printf("  missing: %s\n", m)
	}
	return nil
}

// WorkerCommand returns the worker command
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run background knowledge ingest workers",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Apply job queue schema migrations before starting",
			},
		},
		Action: runWorker,
	}
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.JobQueue.DatabaseURL == "" {
		return errors.New("worker needs jobqueue.database_url")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{skipSessions: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	queue, err := jobqueue.NewJobQueue(ctx, cfg.JobQueue.DatabaseURL, jobqueue.QueueConfigFrom(cfg.JobQueue), rt.Knowledge)
	if err != nil {
		return fmt.Errorf("failed to connect job queue: %w", err)
	}
	defer queue.Close()

	if c.Bool("migrate") {
		if err := queue.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	log.Info().Int("workers", cfg.JobQueue.MaxWorkers).Msg("Ingest workers running")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Info().Msg("Stopping ingest workers")
	return queue.Stop(stopCtx)
}
