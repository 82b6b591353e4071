package knowledge

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/agentshub/internal/config"
)

const registryFile = "registry.json"

// RegistryEntry records one ingested file.
type RegistryEntry struct {
	Backend     string    `json:"backend"`
	Namespace   string    `json:"namespace"`
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	Chunks      int       `json:"chunks"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Registry remembers which file contents were already written to which
// namespace of which backend, making ingestion idempotent across restarts.
// Entries recorded against another backend never count as seen.
type Registry struct {
	path    string
	backend string

	mu      sync.Mutex
	entries map[string]RegistryEntry
}

// OpenRegistry loads <dir>/registry.json for backend. An empty dir keeps the
// registry in memory.
func OpenRegistry(dir, backend string) (*Registry, error) {
	r := &Registry{backend: backend, entries: map[string]RegistryEntry{}}
	if dir == "" {
		return r, nil
	}
	r.path = filepath.Join(dir, registryFile)

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ingestion registry: %w", err)
	}

	var list []RegistryEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse ingestion registry %s: %w", r.path, err)
	}
	for _, e := range list {
		r.entries[registryKey(e.Backend, e.Namespace, e.Path)] = e
	}
	return r, nil
}

func registryKey(backend, namespace, path string) string {
	return backend + "\x00" + namespace + "\x00" + path
}

// Seen reports whether path was ingested into namespace with this fingerprint.
func (r *Registry) Seen(namespace, path, fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[registryKey(r.backend, namespace, path)]
	return ok && e.Fingerprint == fingerprint
}

// Record stores an entry under the registry's backend and persists the registry.
func (r *Registry) Record(e RegistryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Backend = r.backend
	r.entries[registryKey(e.Backend, e.Namespace, e.Path)] = e
	return r.saveLocked()
}

// Entries returns a snapshot of all entries.
func (r *Registry) Entries() []RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	list := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ingestion registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// BackendID identifies the store a registry entry was written to. Connection
// strings are hashed so credentials never reach registry.json.
func BackendID(vs config.VectorStoreConfig) string {
	target := vs.URL
	if vs.Provider == "pgvector" {
		target = vs.DSN
	}
	sum := blake2b.Sum256([]byte(target))
	return vs.Provider + ":" + hex.EncodeToString(sum[:8]) + ":" + vs.CollectionName
}

// Fingerprint hashes a file's contents with BLAKE2b-256.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
