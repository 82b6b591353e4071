// Package knowledge implements the retrieval side of an agent: document
// loading, chunking, embedding into a namespaced vector store, and
// similarity search.
package knowledge

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"

	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/metrics"
)

// Scope selects one agent's slice of the collection.
type Scope struct {
	Collection string
	UserID     string
}

// Namespace is collection_name + "_" + user_id, or the bare collection.
func (s Scope) Namespace() string {
	if s.UserID == "" {
		return s.Collection
	}
	return s.Collection + "_" + s.UserID
}

// Base ties a store to its ingestor and search defaults.
type Base struct {
	store    Store
	ingestor *Ingestor
	topK     int
	metrics  *metrics.Recorder
}

// New wires a knowledge base from an already built store.
func New(store Store, registry *Registry, cfg config.KnowledgeConfig, rec *metrics.Recorder) *Base {
	split := SplitOptions{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}
	return &Base{
		store:    store,
		ingestor: NewIngestor(store, registry, split, rec),
		topK:     cfg.TopK,
		metrics:  rec,
	}
}

// Open builds the vector store and registry described by cfg.
func Open(ctx context.Context, cfg config.KnowledgeConfig, embedder embeddings.Embedder, rec *metrics.Recorder) (*Base, error) {
	store, err := NewVectorStore(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	// vectors in a memory store die with the process, so must its registry
	registryDir := cfg.VectorStore.Path
	if cfg.VectorStore.Provider == "memory" {
		registryDir = ""
	}
	if registryDir != "" {
		if err := os.MkdirAll(registryDir, 0o755); err != nil {
			store.Close()
			return nil, fmt.Errorf("create knowledge dir: %w", err)
		}
	}
	registry, err := OpenRegistry(registryDir, BackendID(cfg.VectorStore))
	if err != nil {
		store.Close()
		return nil, err
	}
	return New(store, registry, cfg, rec), nil
}

// Ingest loads paths into the scope's namespace.
func (b *Base) Ingest(ctx context.Context, scope Scope, paths ...string) (IngestReport, error) {
	return b.ingestor.Ingest(ctx, scope, paths...)
}

// Search returns up to k chunks similar to query. k <= 0 uses the configured top_k.
func (b *Base) Search(ctx context.Context, scope Scope, query string, k int) ([]schema.Document, error) {
	if k <= 0 {
		k = b.topK
	}
	ns := scope.Namespace()
	docs, err := b.store.SimilaritySearch(ctx, ns, query, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search in %s: %w", ns, err)
	}
	b.metrics.ChunksRetrieved(ns, len(docs))
	return docs, nil
}

// Close releases the underlying store.
func (b *Base) Close() error {
	return b.store.Close()
}
