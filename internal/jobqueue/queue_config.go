/*
Package jobqueue configuration: tunable parameters for the River job queue.

## Quick Configuration Reference:

### Performance Tuning:
- Increase MaxWorkers for more concurrent ingestion jobs (jobqueue.max_workers)
- Each ingest job embeds every new chunk, so the embedding service is usually the bottleneck

### Reliability Tuning:
- MaxAttempts bounds how often River retries a failed ingest job
- JobTimeout bounds a single ingest run; large PDFs need more time

## Database Requirements:
- PostgreSQL with River schema migrations applied (`agentshub worker --migrate`)
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"

	"github.com/agentshub/internal/config"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	MaxWorkers  int           // concurrent ingest jobs per process (default: 4)
	MaxAttempts int           // attempts per job before River discards it (default: 5)
	JobTimeout  time.Duration // maximum time a single ingest job can run (default: 10 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  4,
		MaxAttempts: 5,
		JobTimeout:  10 * time.Minute,
	}
}

// QueueConfigFrom overlays the jobqueue section on the defaults.
func QueueConfigFrom(cfg config.JobQueueConfig) *QueueConfig {
	qc := DefaultQueueConfig()
	if cfg.MaxWorkers > 0 {
		qc.MaxWorkers = cfg.MaxWorkers
	}
	return qc
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
