// Package metrics exposes Prometheus instrumentation for agent calls,
// retrieval, ingestion and workflow steps.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentshub/internal/llm"
)

const namespace = "agentshub"

// Recorder holds every collector. Build one per registry.
type Recorder struct {
	agentCalls       *prometheus.CounterVec
	agentErrors      *prometheus.CounterVec
	agentDuration    *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	llmRetries       *prometheus.CounterVec
	llmTimeouts      *prometheus.CounterVec
	jsonRepairs      *prometheus.CounterVec
	chunksIngested   *prometheus.CounterVec
	retrievedChunks  *prometheus.HistogramVec
	workflowSteps    *prometheus.CounterVec
	guardRejections  prometheus.Counter
	sessionsActive   prometheus.Gauge
	modelCallLatency *prometheus.HistogramVec
}

var _ llm.EventSink = (*Recorder)(nil)

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		agentCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Agent invocations by agent name and outcome",
		}, []string{"agent", "status"}),
		agentErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_errors_total",
			Help:      "Agent invocation failures by agent name",
		}, []string{"agent"}),
		agentDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_duration_seconds",
			Help:      "Agent invocation duration",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"agent"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		llmRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Retried model calls by model",
		}, []string{"model"}),
		llmTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_timeouts_total",
			Help:      "Model calls that hit their deadline",
		}, []string{"model"}),
		jsonRepairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "json_repairs_total",
			Help:      "Structured responses that needed JSON repair",
		}, []string{"model"}),
		chunksIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_chunks_ingested_total",
			Help:      "Document chunks written to the vector store",
		}, []string{"namespace"}),
		retrievedChunks: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "knowledge_retrieved_chunks",
			Help:      "Chunks returned per similarity search",
			Buckets:   []float64{0, 1, 2, 4, 8, 16},
		}, []string{"namespace"}),
		workflowSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Executed workflow tasks by task name",
		}, []string{"task"}),
		guardRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_rejections_total",
			Help:      "Prompts rejected by injection screening",
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Chat sessions created by this process",
		}),
		modelCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Model call duration including retries",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"model", "status"}),
	}
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// Default returns the recorder registered on the global Prometheus registry.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = New(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// ObserveAgentCall records one agent invocation.
func (r *Recorder) ObserveAgentCall(agent string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		r.agentErrors.WithLabelValues(agent).Inc()
	}
	r.agentCalls.WithLabelValues(agent, status).Inc()
	r.agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// CacheLookup records a cache hit or miss.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ChunksIngested records chunks added to a namespace.
func (r *Recorder) ChunksIngested(ns string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.chunksIngested.WithLabelValues(ns).Add(float64(n))
}

// ChunksRetrieved records the size of a similarity search result.
func (r *Recorder) ChunksRetrieved(ns string, n int) {
	if r == nil {
		return
	}
	r.retrievedChunks.WithLabelValues(ns).Observe(float64(n))
}

// WorkflowStep records one executed workflow task.
func (r *Recorder) WorkflowStep(task string) {
	if r == nil {
		return
	}
	r.workflowSteps.WithLabelValues(task).Inc()
}

// GuardRejected records a screened-out prompt.
func (r *Recorder) GuardRejected() {
	if r == nil {
		return
	}
	r.guardRejections.Inc()
}

// SessionCreated bumps the session gauge.
func (r *Recorder) SessionCreated() {
	if r == nil {
		return
	}
	r.sessionsActive.Inc()
}

// SessionDeleted lowers the session gauge.
func (r *Recorder) SessionDeleted() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}

// OnRetry implements llm.EventSink.
func (r *Recorder) OnRetry(model string, _ int, _ string) {
	if r == nil {
		return
	}
	r.llmRetries.WithLabelValues(model).Inc()
}

// OnTimeout implements llm.EventSink.
func (r *Recorder) OnTimeout(model string, _, _ time.Duration) {
	if r == nil {
		return
	}
	r.llmTimeouts.WithLabelValues(model).Inc()
}

// OnJSONRepair implements llm.EventSink.
func (r *Recorder) OnJSONRepair(model string, _ llm.JsonRepairStats) {
	if r == nil {
		return
	}
	r.jsonRepairs.WithLabelValues(model).Inc()
}

// OnCompletion implements llm.EventSink.
func (r *Recorder) OnCompletion(model string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.modelCallLatency.WithLabelValues(model, status).Observe(d.Seconds())
}
