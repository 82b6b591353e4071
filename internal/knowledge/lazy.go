package knowledge

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/schema"
)

// OpenFunc opens a knowledge base.
type OpenFunc func(ctx context.Context) (*Base, error)

// Lazy defers opening the knowledge base until an agent first needs it, so a
// process whose vector store is offline still serves agents without knowledge.
// A failed open is retried on the next call.
type Lazy struct {
	open OpenFunc

	mu   sync.Mutex
	base *Base
}

func NewLazy(open OpenFunc) *Lazy {
	return &Lazy{open: open}
}

// Get returns the opened base, opening it if needed.
func (l *Lazy) Get(ctx context.Context) (*Base, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.base != nil {
		return l.base, nil
	}
	b, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	l.base = b
	return b, nil
}

func (l *Lazy) Ingest(ctx context.Context, scope Scope, paths ...string) (IngestReport, error) {
	b, err := l.Get(ctx)
	if err != nil {
		return IngestReport{}, err
	}
	return b.Ingest(ctx, scope, paths...)
}

func (l *Lazy) Search(ctx context.Context, scope Scope, query string, k int) ([]schema.Document, error) {
	b, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return b.Search(ctx, scope, query, k)
}

// Close closes the base if it was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.base == nil {
		return nil
	}
	err := l.base.Close()
	l.base = nil
	return err
}
