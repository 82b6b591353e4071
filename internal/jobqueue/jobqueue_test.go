package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/knowledge"
)

type recordingIngester struct {
	scope knowledge.Scope
	paths []string
	err   error
}

func (r *recordingIngester) Ingest(_ context.Context, scope knowledge.Scope, paths ...string) (knowledge.IngestReport, error) {
	r.scope = scope
	r.paths = paths
	return knowledge.IngestReport{Namespace: scope.Namespace(), Added: paths, Chunks: 3}, r.err
}

func job(args IngestJobArgs) *river.Job[IngestJobArgs] {
	return &river.Job[IngestJobArgs]{JobRow: &rivertype.JobRow{ID: 7, Attempt: 1}, Args: args}
}

func TestIngestJobArgs_Kind(t *testing.T) {
	assert.Equal(t, "knowledge_ingest", IngestJobArgs{}.Kind())
}

func TestIngestWorker_Work(t *testing.T) {
	ing := &recordingIngester{}
	w := NewIngestWorker(ing, nil)

	err := w.Work(context.Background(), job(IngestJobArgs{Collection: "praison", UserID: "user1", Paths: []string{"docs/a.md"}}))
	require.NoError(t, err)
	assert.Equal(t, "praison_user1", ing.scope.Namespace())
	assert.Equal(t, []string{"docs/a.md"}, ing.paths)
}

func TestIngestWorker_Errors(t *testing.T) {
	boom := errors.New("embedder offline")
	w := NewIngestWorker(&recordingIngester{err: boom}, nil)
	err := w.Work(context.Background(), job(IngestJobArgs{Collection: "praison", Paths: []string{"a.md"}}))
	assert.ErrorIs(t, err, boom)

	err = w.Work(context.Background(), job(IngestJobArgs{Collection: "praison"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no paths")
}

func TestQueueConfig(t *testing.T) {
	def := DefaultQueueConfig()
	assert.Equal(t, 4, def.MaxWorkers)
	assert.Equal(t, 10*time.Minute, NewIngestWorker(nil, nil).Timeout(nil))

	qc := QueueConfigFrom(config.JobQueueConfig{MaxWorkers: 9})
	assert.Equal(t, 9, qc.MaxWorkers)
	assert.Equal(t, 9, qc.RiverQueueConfig()[river.QueueDefault].MaxWorkers)

	assert.Equal(t, 4, QueueConfigFrom(config.JobQueueConfig{}).MaxWorkers)
}
