package knowledge

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the files that settled after a burst of writes.
type ChangeFunc func(ctx context.Context, paths []string)

// Watcher reports created or modified documents in a directory. Rapid
// successive saves of one file are reported once.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange ChangeFunc
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher watches dir. A zero debounce uses 500ms.
func NewWatcher(dir string, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		pending:  map[string]time.Time{},
	}, nil
}

// Run blocks until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	tick := time.NewTicker(w.debounce / 5)
	defer tick.Stop()

	log.Info().Str("dir", w.dir).Msg("Watching knowledge documents")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("dir", w.dir).Msg("Watcher error")
		case <-tick.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if _, err := DetectFormat(event.Name); err != nil {
		return
	}
	w.mu.Lock()
	w.pending[filepath.Clean(event.Name)] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var ready []string

	w.mu.Lock()
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	slices.Sort(ready)
	log.Debug().Strs("paths", ready).Msg("Knowledge documents changed")
	w.onChange(ctx, ready)
}
