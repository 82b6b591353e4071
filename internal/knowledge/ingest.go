package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/sync/errgroup"

	"github.com/agentshub/internal/metrics"
)

const maxParallelLoads = 4

// IngestReport summarises one ingestion call.
type IngestReport struct {
	Namespace string   `json:"namespace"`
	Added     []string `json:"added"`
	Skipped   []string `json:"skipped"`
	Missing   []string `json:"missing"`
	Chunks    int      `json:"chunks"`
}

// Ingestor loads files, splits them and writes them to a store once per content version.
type Ingestor struct {
	store    Store
	registry *Registry
	split    SplitOptions
	metrics  *metrics.Recorder
}

// NewIngestor creates an ingestor. rec may be nil.
func NewIngestor(store Store, registry *Registry, split SplitOptions, rec *metrics.Recorder) *Ingestor {
	return &Ingestor{store: store, registry: registry, split: split, metrics: rec}
}

type loadedFile struct {
	path        string
	fingerprint string
	docs        []schema.Document
}

// Ingest writes the given files into the scope's namespace. Missing files are
// logged and skipped; unchanged files are skipped through the registry.
func (in *Ingestor) Ingest(ctx context.Context, scope Scope, paths ...string) (IngestReport, error) {
	ns := scope.Namespace()
	report := IngestReport{Namespace: ns}

	expanded, err := ExpandPaths(paths)
	if err != nil {
		return report, err
	}

	var pending []*loadedFile
	for _, p := range expanded {
		abs, absErr := filepath.Abs(p)
		if absErr != nil {
			abs = p
		}
		if _, statErr := os.Stat(abs); errors.Is(statErr, os.ErrNotExist) {
			log.Warn().Str("path", p).Str("namespace", ns).Msg("Knowledge file not found, skipping")
			report.Missing = append(report.Missing, p)
			continue
		}
		if _, fmtErr := DetectFormat(abs); fmtErr != nil {
			return report, fmtErr
		}
		fp, fpErr := Fingerprint(abs)
		if fpErr != nil {
			return report, fpErr
		}
		if in.registry.Seen(ns, abs, fp) {
			report.Skipped = append(report.Skipped, p)
			continue
		}
		pending = append(pending, &loadedFile{path: abs, fingerprint: fp})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for _, lf := range pending {
		g.Go(func() error {
			docs, loadErr := LoadFile(gctx, lf.path, in.split)
			if loadErr != nil {
				return loadErr
			}
			for i := range docs {
				docs[i].Metadata["source"] = lf.path
				docs[i].Metadata["user_id"] = scope.UserID
			}
			lf.docs = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, lf := range pending {
		// a changed file replaces every chunk of its previous version
		if err := in.store.DeleteBySource(ctx, ns, lf.path); err != nil {
			return report, err
		}
		if len(lf.docs) > 0 {
			if _, err := in.store.AddDocuments(ctx, ns, lf.docs); err != nil {
				return report, fmt.Errorf("add %s to %s: %w", lf.path, ns, err)
			}
		}
		if err := in.registry.Record(RegistryEntry{
			Namespace:   ns,
			Path:        lf.path,
			Fingerprint: lf.fingerprint,
			Chunks:      len(lf.docs),
			IngestedAt:  time.Now().UTC(),
		}); err != nil {
			return report, err
		}
		report.Added = append(report.Added, lf.path)
		report.Chunks += len(lf.docs)
		in.metrics.ChunksIngested(ns, len(lf.docs))

		log.Info().
			Str("path", lf.path).
			Str("namespace", ns).
			Int("chunks", len(lf.docs)).
			Msg("Ingested knowledge file")
	}

	return report, nil
}
