package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromago "github.com/amikos-tech/chroma-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/chroma"
	"github.com/tmc/langchaingo/vectorstores/pgvector"

	"github.com/agentshub/internal/config"
)

// Store is a namespaced vector store. Every agent reads and writes only its
// own namespace.
type Store interface {
	AddDocuments(ctx context.Context, namespace string, docs []schema.Document) ([]string, error)
	SimilaritySearch(ctx context.Context, namespace, query string, k int) ([]schema.Document, error)
	// DeleteBySource removes every chunk whose "source" metadata is path.
	DeleteBySource(ctx context.Context, namespace, path string) error
	Close() error
}

// NewVectorStore builds the store selected by knowledge.vector_store.provider.
func NewVectorStore(ctx context.Context, cfg config.KnowledgeConfig, embedder embeddings.Embedder) (Store, error) {
	if embedder == nil {
		return nil, errors.New("knowledge: embedder is required")
	}

	vs := cfg.VectorStore
	log.Info().
		Str("provider", vs.Provider).
		Str("collection", vs.CollectionName).
		Msg("Opening vector store")

	switch vs.Provider {
	case "chroma":
		store, err := chroma.New(
			chroma.WithChromaURL(vs.URL),
			chroma.WithEmbedder(embedder),
			chroma.WithNameSpace(vs.CollectionName),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to chroma at %s: %w", vs.URL, err)
		}
		client, err := chromago.NewClient(vs.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to chroma at %s: %w", vs.URL, err)
		}
		col, err := client.GetCollection(ctx, vs.CollectionName, nil)
		if err != nil {
			return nil, fmt.Errorf("get chroma collection %s: %w", vs.CollectionName, err)
		}
		return &chromaStore{store: store, collection: col}, nil
	case "pgvector":
		return &pgvectorStore{
			dsn:      vs.DSN,
			dims:     cfg.Embedder.EmbeddingDims,
			embedder: embedder,
			stores:   map[string]pgvector.Store{},
		}, nil
	case "memory":
		return NewMemoryStore(embedder), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", vs.Provider)
	}
}

// chromaStore keeps every namespace in one collection, separated by a metadata key.
// The raw collection handle serves deletes, which langchaingo does not expose.
type chromaStore struct {
	store      chroma.Store
	collection *chromago.Collection
}

func (s *chromaStore) AddDocuments(ctx context.Context, namespace string, docs []schema.Document) ([]string, error) {
	return s.store.AddDocuments(ctx, docs, vectorstores.WithNameSpace(namespace))
}

func (s *chromaStore) SimilaritySearch(ctx context.Context, namespace, query string, k int) ([]schema.Document, error) {
	return s.store.SimilaritySearch(ctx, query, k, vectorstores.WithNameSpace(namespace))
}

func (s *chromaStore) DeleteBySource(ctx context.Context, namespace, path string) error {
	where := map[string]any{"$and": []map[string]any{
		{chroma.DefaultNameSpaceKey: namespace},
		{"source": path},
	}}
	if _, err := s.collection.Delete(ctx, nil, where, nil); err != nil {
		return fmt.Errorf("delete %s from %s: %w", path, namespace, err)
	}
	return nil
}

func (s *chromaStore) Close() error {
	return nil
}

// pgvectorStore maps each namespace to its own pgvector collection. All
// collections share one pool, opened on first use.
type pgvectorStore struct {
	dsn      string
	dims     int
	embedder embeddings.Embedder

	mu     sync.Mutex
	pool   *pgxpool.Pool
	stores map[string]pgvector.Store
}

func (s *pgvectorStore) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to pgvector: %w", err)
	}
	s.pool = pool
	return pool, nil
}

func (s *pgvectorStore) collection(ctx context.Context, namespace string) (pgvector.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[namespace]; ok {
		return st, nil
	}
	pool, err := s.connect(ctx)
	if err != nil {
		return pgvector.Store{}, err
	}
	st, err := pgvector.New(ctx,
		pgvector.WithConn(pool),
		pgvector.WithEmbedder(s.embedder),
		pgvector.WithCollectionName(namespace),
		pgvector.WithVectorDimensions(s.dims),
	)
	if err != nil {
		return pgvector.Store{}, fmt.Errorf("open pgvector collection %s: %w", namespace, err)
	}
	s.stores[namespace] = st
	return st, nil
}

func (s *pgvectorStore) AddDocuments(ctx context.Context, namespace string, docs []schema.Document) ([]string, error) {
	st, err := s.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return st.AddDocuments(ctx, docs)
}

func (s *pgvectorStore) SimilaritySearch(ctx context.Context, namespace, query string, k int) ([]schema.Document, error) {
	st, err := s.collection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return st.SimilaritySearch(ctx, query, k)
}

var deleteBySourceSQL = fmt.Sprintf(`DELETE FROM %s
WHERE collection_id = (SELECT uuid FROM %s WHERE name = $1)
  AND cmetadata->>'source' = $2`,
	pgvector.DefaultEmbeddingStoreTableName, pgvector.DefaultCollectionStoreTableName)

func (s *pgvectorStore) DeleteBySource(ctx context.Context, namespace, path string) error {
	// opening the collection creates the tables on a fresh database
	if _, err := s.collection(ctx, namespace); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, deleteBySourceSQL, namespace, path); err != nil {
		return fmt.Errorf("delete %s from %s: %w", path, namespace, err)
	}
	return nil
}

func (s *pgvectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.stores)
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
