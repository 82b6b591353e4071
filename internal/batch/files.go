package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".tif": true, ".tiff": true, ".webp": true, ".svg": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".lib": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true,
	".rar": true, ".jar": true, ".war": true, ".ear": true, ".class": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".bin": true, ".dat": true, ".o": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".ttf": true, ".woff": true, ".woff2": true,
	".eot": true, ".pyc": true, ".pyd": true, ".pyo": true,
}

// lockFiles are generated and too noisy to review.
var lockFiles = map[string]bool{
	"go.sum": true, "package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"Cargo.lock": true, "poetry.lock": true, "Gemfile.lock": true, "composer.lock": true,
}

// SourceFile is a file selected for review.
type SourceFile struct {
	Path    string
	Content string
}

// ShouldSkipFile reports whether path is binary or generated and therefore
// not suitable for a text-based review.
func ShouldSkipFile(path, content string) bool {
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] || lockFiles[filepath.Base(path)] {
		return true
	}
	return IsBinaryFile(content)
}

// IsBinaryFile checks if a file is likely to be a binary (non-text) file
// This is a simple heuristic based on looking for null bytes and a high
// percentage of non-printable characters in a sample of the content
func IsBinaryFile(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.Contains(content, "\x00") {
		return true
	}

	sample := content[:min(len(content), 512)]
	nonPrintable := 0
	for _, r := range sample {
		if (r < 32 && r != '\t' && r != '\n' && r != '\r') || r >= 127 {
			nonPrintable++
		}
	}

	// more than 30% non-printable
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}

// CollectSourceFiles reads the files named by paths, walking directories,
// and returns those worth reviewing plus the ones it skipped. Hidden
// directories are not descended into.
func CollectSourceFiles(paths []string) (files []SourceFile, skipped []string, err error) {
	add := func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if ShouldSkipFile(path, string(data)) || strings.TrimSpace(string(data)) == "" {
			skipped = append(skipped, path)
			return nil
		}
		files = append(files, SourceFile{Path: path, Content: string(data)})
		return nil
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			if err := add(root); err != nil {
				return nil, nil, err
			}
			continue
		}
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return files, skipped, nil
}
