package knowledge

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
)

type memoryEntry struct {
	id     string
	doc    schema.Document
	vector []float32
}

// MemoryStore is an in-process vector store ranking by cosine similarity.
// It is meant for tests and single-user local runs.
type MemoryStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries map[string][]memoryEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(embedder embeddings.Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder, entries: map[string][]memoryEntry{}}
}

func (s *MemoryStore) AddDocuments(ctx context.Context, namespace string, docs []schema.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = uuid.NewString()
		md := make(map[string]any, len(d.Metadata))
		maps.Copy(md, d.Metadata)
		s.entries[namespace] = append(s.entries[namespace], memoryEntry{
			id:     ids[i],
			doc:    schema.Document{PageContent: d.PageContent, Metadata: md},
			vector: vectors[i],
		})
	}
	return ids, nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, namespace, query string, k int) ([]schema.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	entries := s.entries[namespace]
	s.mu.RUnlock()
	if len(entries) == 0 {
		return nil, nil
	}

	qv, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		idx   int
		score float32
	}
	ranked := make([]scored, len(entries))
	for i, e := range entries {
		ranked[i] = scored{idx: i, score: cosine(qv, e.vector)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]schema.Document, 0, k)
	for _, r := range ranked[:k] {
		d := entries[r.idx].doc
		out = append(out, schema.Document{PageContent: d.PageContent, Metadata: maps.Clone(d.Metadata), Score: r.score})
	}
	return out, nil
}

func (s *MemoryStore) DeleteBySource(_ context.Context, namespace, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []memoryEntry
	for _, e := range s.entries[namespace] {
		if e.doc.Metadata["source"] != path {
			kept = append(kept, e)
		}
	}
	s.entries[namespace] = kept
	return nil
}

// Len reports how many chunks a namespace holds.
func (s *MemoryStore) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[namespace])
}

func (s *MemoryStore) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
