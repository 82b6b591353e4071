package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/aiconnectors"
	"github.com/agentshub/internal/api"
	"github.com/agentshub/internal/cache"
	"github.com/agentshub/internal/chat"
	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/guard"
	"github.com/agentshub/internal/jobqueue"
	"github.com/agentshub/internal/knowledge"
	"github.com/agentshub/internal/learning"
	"github.com/agentshub/internal/logging"
	"github.com/agentshub/internal/metrics"
	"github.com/agentshub/internal/workflow"
)

// Runtime holds the collaborators shared by every command.
type Runtime struct {
	Config    *config.Config
	Metrics   *metrics.Recorder
	Models    *aiconnectors.Pool
	Knowledge *knowledge.Lazy
	Cache     cache.Cache
	Catalog   *agents.Catalog
	Sessions  chat.Store
	Queue     *jobqueue.JobQueue
}

type runtimeOptions struct {
	// withQueue connects an insert-only job queue when one is configured.
	withQueue bool
	// skipSessions leaves Sessions nil for commands that keep no history.
	skipSessions bool
}

// loadConfig reads and validates the file named by the --config flag and
// configures logging from it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Metrics: metrics.Default(),
		Models:  aiconnectors.NewPool(cfg.Knowledge.LLM),
	}

	rt.Knowledge = knowledge.NewLazy(func(ctx context.Context) (*knowledge.Base, error) {
		embedder, err := aiconnectors.NewEmbedder(cfg.Knowledge.Embedder)
		if err != nil {
			return nil, err
		}
		return knowledge.Open(ctx, cfg.Knowledge, embedder, rt.Metrics)
	})
	rt.Cache = cache.New(ctx, cfg.Cache)
	rt.Catalog = agents.NewCatalog(cfg.Knowledge, rt.agentOptions()...)

	if !opts.skipSessions {
		sessions, err := chat.NewStore(ctx, cfg.Session)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		rt.Sessions = sessions
	}

	if opts.withQueue && cfg.JobQueue.DatabaseURL != "" {
		queue, err := jobqueue.NewJobQueue(ctx, cfg.JobQueue.DatabaseURL, jobqueue.QueueConfigFrom(cfg.JobQueue), nil)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to connect job queue: %w", err)
		}
		rt.Queue = queue
	}
	return rt, nil
}

func (rt *Runtime) agentOptions() []agents.Option {
	return []agents.Option{
		agents.WithModels(rt.Models),
		agents.WithKnowledgeBase(rt.Knowledge),
		agents.WithCache(rt.Cache, rt.Config.Cache.TTL),
		agents.WithGuard(guard.New(rt.Config.Guard)),
		agents.WithMetrics(rt.Metrics),
	}
}

// Learning builds the adaptive learning workflow with the runtime's agents.
func (rt *Runtime) Learning() (*workflow.Workflow, error) {
	return learning.NewAdaptiveLearningWorkflow(rt.Config.Knowledge, rt.Config.Learning.MaxVisits, time.Now, rt.agentOptions()...)
}

// Hub wires a request router over the runtime.
func (rt *Runtime) Hub() *api.Hub {
	opts := api.HubOptions{
		Catalog:   rt.Catalog,
		Sessions:  rt.Sessions,
		Learning:  rt.Learning,
		Knowledge: rt.Knowledge,
		Metrics:   rt.Metrics,
	}
	if rt.Queue != nil {
		opts.Queue = rt.Queue
	}
	return api.NewHub(opts)
}

// Probes are the deep health checks for the configured backends.
func (rt *Runtime) Probes() []api.Probe {
	probes := []api.Probe{}
	if rt.Config.Knowledge.LLM.Provider == string(aiconnectors.ProviderOllama) {
		url := rt.Config.Knowledge.LLM.OllamaBaseURL
		probes = append(probes, func(ctx context.Context) aiconnectors.ProbeResult {
			return aiconnectors.ProbeOllama(ctx, url)
		})
	}
	if rt.Config.Knowledge.VectorStore.Provider == "chroma" {
		url := rt.Config.Knowledge.VectorStore.URL
		probes = append(probes, func(ctx context.Context) aiconnectors.ProbeResult {
			return aiconnectors.ProbeChroma(ctx, url)
		})
	}
	return probes
}

// Close releases every backend the runtime opened.
func (rt *Runtime) Close() {
	var errs []error
	if rt.Queue != nil {
		rt.Queue.Close()
	}
	if rt.Sessions != nil {
		errs = append(errs, rt.Sessions.Close())
	}
	if rt.Knowledge != nil {
		errs = append(errs, rt.Knowledge.Close())
	}
	if rt.Cache != nil {
		errs = append(errs, rt.Cache.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Error during shutdown")
	}
}

// startRun opens a per-run log file for one CLI invocation. Failure only
// disables the file log.
func startRun(cfg *config.Config, kind string) func() {
	logger, err := logging.StartRunLogging(cfg.Log.RunDir, newRunID(), kind)
	if err != nil {
		log.Warn().Err(err).Msg("Run log disabled")
		return func() {}
	}
	logger.SetEventSink(runEvents{})
	return logger.Close
}
