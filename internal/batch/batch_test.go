package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBinaryFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected bool
	}{
		{
			name:     "Empty string",
			content:  "",
			expected: false,
		},
		{
			name:     "Plain text",
			content:  "This is a plain text file with normal content.\nIt has multiple lines and some special chars like $@#%.",
			expected: false,
		},
		{
			name:     "Code file",
			content:  "package main\n\nfunc main() {\n\tfmt.Println(\"Hello, world!\")\n}\n",
			expected: false,
		},
		{
			name:     "File with null byte",
			content:  "This file has a null byte \x00 in it.",
			expected: true,
		},
		{
			name:     "High non-printable ratio",
			content:  "Normal text with \x01\x02\x03\x04\x05\x06\x07\x08\x0B\x0C\x0E\x0F\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1A\x1B\x1C\x1D\x1E\x1F many control chars",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsBinaryFile(tt.content))
		})
	}
}

func TestShouldSkipFile(t *testing.T) {
	tests := []struct {
		name     string
		filePath string
		content  string
		expected bool
	}{
		{"Text file", "file.txt", "This is a text file.", false},
		{"Code file", "main.go", "package main\n", false},
		{"Image file", "image.png", "Some content that won't be checked", true},
		{"Lock file", "web/package-lock.json", "{}", true},
		{"Binary content with text extension", "suspicious.txt", "\x7F\x45\x4C\x46\x02\x01\x01\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldSkipFile(tt.filePath, tt.content))
		})
	}
}

func TestCollectSourceFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	mainGo := write("main.go", "package main\n")
	utilPy := write("pkg/util.py", "def f():\n    return 1\n")
	logo := write("logo.png", "\x89PNG")
	empty := write("empty.txt", "  \n")
	write(".git/config", "[core]")

	files, skipped, err := CollectSourceFiles([]string{dir})
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{mainGo, utilPy}, paths)
	assert.ElementsMatch(t, []string{logo, empty}, skipped)

	files, _, err = CollectSourceFiles([]string{mainGo})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "package main\n", files[0].Content)

	_, _, err = CollectSourceFiles([]string{filepath.Join(dir, "absent.go")})
	assert.Error(t, err)
}

func TestTaskQueue_OrderedResultsAndBoundedConcurrency(t *testing.T) {
	q := NewTaskQueue[string](2)

	var running, peak atomic.Int32
	for i := range 6 {
		q.AddTask(Task[string]{
			ID: fmt.Sprintf("t%d", i),
			Run: func(context.Context) (string, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				if i == 3 {
					return "", errors.New("boom")
				}
				return fmt.Sprintf("done %d", i), nil
			},
		})
	}

	results := q.ProcessAll(context.Background())
	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("t%d", i), r.TaskID)
		if i == 3 {
			assert.EqualError(t, r.Err, "boom")
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("done %d", i), r.Value)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestTaskQueue_CancelledAndPanics(t *testing.T) {
	q := NewTaskQueue[int](1)
	q.AddTask(Task[int]{ID: "panic", Run: func(context.Context) (int, error) { panic("bad input") }})
	results := q.ProcessAll(context.Background())
	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Err, "panicked: bad input")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q = NewTaskQueue[int](0)
	q.AddTask(Task[int]{ID: "never", Run: func(context.Context) (int, error) { return 1, nil }})
	results = q.ProcessAll(ctx)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}
