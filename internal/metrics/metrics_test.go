package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/agentshub/internal/llm"
)

func TestRecorder_AgentCalls(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveAgentCall("General Assistant", time.Second, nil)
	r.ObserveAgentCall("General Assistant", time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.agentCalls.WithLabelValues("General Assistant", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.agentCalls.WithLabelValues("General Assistant", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.agentErrors.WithLabelValues("General Assistant")))
}

func TestRecorder_Counters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.CacheLookup(true)
	r.CacheLookup(false)
	r.CacheLookup(false)
	r.ChunksIngested("praison_user1", 12)
	r.ChunksIngested("praison_user1", 0)
	r.WorkflowStep("assess_level")
	r.GuardRejected()
	r.SessionCreated()
	r.SessionCreated()
	r.SessionDeleted()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.chunksIngested.WithLabelValues("praison_user1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.workflowSteps.WithLabelValues("assess_level")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.guardRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsActive))
}

func TestRecorder_EventSink(t *testing.T) {
	r := New(prometheus.NewRegistry())
	var sink llm.EventSink = r

	sink.OnRetry("mistral:latest", 1, "503")
	sink.OnTimeout("mistral:latest", time.Second, 2*time.Second)
	sink.OnJSONRepair("mistral:latest", llm.JsonRepairStats{WasRepaired: true})
	sink.OnCompletion("mistral:latest", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmRetries.WithLabelValues("mistral:latest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmTimeouts.WithLabelValues("mistral:latest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jsonRepairs.WithLabelValues("mistral:latest")))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveAgentCall("a", time.Second, nil)
		r.CacheLookup(true)
		r.ChunksIngested("n", 1)
		r.ChunksRetrieved("n", 1)
		r.WorkflowStep("t")
		r.GuardRejected()
		r.SessionCreated()
		r.OnRetry("m", 1, "x")
		r.OnCompletion("m", time.Second, nil)
	})
}

func TestDefault_IsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
