package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDocsDir is returned for paths that resolve outside the docs directory.
var ErrOutsideDocsDir = errors.New("path is outside the knowledge docs directory")

// ConfinePaths resolves paths against root and rejects any that escape it,
// following symlinks of files that exist. Relative paths are taken relative
// to root.
func ConfinePaths(root string, paths []string) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: no docs directory configured", ErrOutsideDocsDir)
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(full) {
			full = filepath.Join(base, full)
		}
		full = filepath.Clean(full)
		if resolved, err := filepath.EvalSymlinks(full); err == nil {
			full = resolved
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		rel, err := filepath.Rel(base, full)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s", ErrOutsideDocsDir, p)
		}
		out = append(out, full)
	}
	return out, nil
}
