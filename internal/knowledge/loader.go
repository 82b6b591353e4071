package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// ErrUnsupportedFormat is returned for files no loader handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Format is the loader family chosen by file extension.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

var textExtensions = map[string]bool{
	".txt": true, ".rst": true, ".log": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".kt": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".cs": true, ".rs": true, ".rb": true, ".php": true, ".swift": true, ".scala": true,
	".sh": true, ".sql": true, ".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".html": true, ".css": true,
}

// DetectFormat maps a path onto a loader family.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return FormatPDF, nil
	case ext == ".md" || ext == ".markdown":
		return FormatMarkdown, nil
	case textExtensions[ext]:
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// SplitOptions controls chunking.
type SplitOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

func (o SplitOptions) splitter(format Format) textsplitter.TextSplitter {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(o.ChunkSize),
		textsplitter.WithChunkOverlap(o.ChunkOverlap),
	}
	if format == FormatMarkdown {
		return textsplitter.NewMarkdownTextSplitter(opts...)
	}
	return textsplitter.NewRecursiveCharacter(opts...)
}

// LoadFile reads and chunks one document.
func LoadFile(ctx context.Context, path string, opts SplitOptions) ([]schema.Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	splitter := opts.splitter(format)

	var docs []schema.Document
	switch format {
	case FormatPDF:
		info, statErr := f.Stat()
		if statErr != nil {
			return nil, statErr
		}
		docs, err = documentloaders.NewPDF(f, info.Size()).LoadAndSplit(ctx, splitter)
	default:
		docs, err = documentloaders.NewText(f).LoadAndSplit(ctx, splitter)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		if d.Metadata == nil {
			d.Metadata = map[string]any{}
		}
		d.Metadata["format"] = string(format)
		out = append(out, d)
	}
	return out, nil
}

// ExpandPaths replaces directories with the supported files beneath them.
// Explicit file paths are kept as given so unsupported formats still surface
// as errors.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if _, ferr := DetectFormat(path); ferr == nil {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
