/*
Package jobqueue provides a River-based job queue for knowledge ingestion.

The API server enqueues ingest jobs; `agentshub worker` runs them. For tuning
parameters see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/agentshub/internal/knowledge"
)

// IngestJobKind is the River kind of knowledge ingest jobs.
const IngestJobKind = "knowledge_ingest"

// Ingester loads files into a knowledge namespace. *knowledge.Base implements it.
type Ingester interface {
	Ingest(ctx context.Context, scope knowledge.Scope, paths ...string) (knowledge.IngestReport, error)
}

// IngestJobArgs represents the arguments for a knowledge ingest job
type IngestJobArgs struct {
	Collection string   `json:"collection"`
	UserID     string   `json:"user_id"`
	Paths      []string `json:"paths"`
}

// Kind returns the job kind for River
func (IngestJobArgs) Kind() string {
	return IngestJobKind
}

func (a IngestJobArgs) scope() knowledge.Scope {
	return knowledge.Scope{Collection: a.Collection, UserID: a.UserID}
}

// IngestWorker handles knowledge ingest jobs
type IngestWorker struct {
	river.WorkerDefaults[IngestJobArgs]
	ingester Ingester
	config   *QueueConfig
}

// NewIngestWorker creates a worker. cfg may be nil for defaults.
func NewIngestWorker(ingester Ingester, cfg *QueueConfig) *IngestWorker {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}
	return &IngestWorker{ingester: ingester, config: cfg}
}

// Timeout bounds a single ingest run.
func (w *IngestWorker) Timeout(*river.Job[IngestJobArgs]) time.Duration {
	return w.config.JobTimeout
}

// Work performs the ingestion. Files already in the registry are skipped, so
// a retried job only redoes what failed.
func (w *IngestWorker) Work(ctx context.Context, job *river.Job[IngestJobArgs]) error {
	args := job.Args
	if len(args.Paths) == 0 {
		return river.JobCancel(errors.New("ingest job has no paths"))
	}

	log.Info().
		Int64("job_id", job.ID).
		Int("attempt", job.Attempt).
		Str("namespace", args.scope().Namespace()).
		Strs("paths", args.Paths).
		Msg("Processing knowledge ingest job")

	report, err := w.ingester.Ingest(ctx, args.scope(), args.Paths...)
	if err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("Knowledge ingest failed")
		return fmt.Errorf("ingest %s: %w", args.scope().Namespace(), err)
	}

	log.Info().
		Int64("job_id", job.ID).
		Int("added", len(report.Added)).
		Int("skipped", len(report.Skipped)).
		Int("missing", len(report.Missing)).
		Int("chunks", report.Chunks).
		Msg("Knowledge ingest completed")
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a job queue. With a nil ingester the client is
// insert-only: it can enqueue jobs but runs no workers.
func NewJobQueue(ctx context.Context, databaseURL string, cfg *QueueConfig, ingester Ingester) (*JobQueue, error) {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	riverCfg := &river.Config{}
	if ingester != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, NewIngestWorker(ingester, cfg))
		riverCfg.Queues = cfg.RiverQueueConfig()
		riverCfg.Workers = workers
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: cfg,
	}, nil
}

// Migrate applies River's schema migrations.
func (jq *JobQueue) Migrate(ctx context.Context) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(jq.pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate river schema: %w", err)
	}
	log.Info().Int("applied", len(res.Versions)).Msg("River migrations applied")
	return nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// Close releases the connection pool. Call Stop first if workers are running.
func (jq *JobQueue) Close() {
	jq.pool.Close()
}

// QueueIngestJob queues an ingest of paths into scope and returns the job id.
func (jq *JobQueue) QueueIngestJob(ctx context.Context, scope knowledge.Scope, paths []string) (int64, error) {
	args := IngestJobArgs{
		Collection: scope.Collection,
		UserID:     scope.UserID,
		Paths:      paths,
	}

	res, err := jq.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: jq.config.MaxAttempts})
	if err != nil {
		return 0, fmt.Errorf("failed to queue knowledge ingest job: %w", err)
	}
	return res.Job.ID, nil
}
