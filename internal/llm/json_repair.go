package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// JsonRepairStats tracks statistics about JSON repair operations
type JsonRepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	CommentsLost     int           `json:"comments_lost"`
	ErrorsFixed      int           `json:"errors_fixed"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	singleQuotedPattern  = regexp.MustCompile(`'([^'\n]*)'`)
)

// RepairJSON attempts to repair the malformed JSON small local models tend to
// emit. Cheap textual fixes run first; the jsonrepair library is the fallback.
func RepairJSON(raw string) (repaired string, stats JsonRepairStats, err error) {
	startTime := time.Now()
	stats.OriginalBytes = len(raw)

	if json.Valid([]byte(raw)) {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(startTime)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired = raw

	apply := func(name string, fix func(string) string) {
		next := fix(repaired)
		if next != repaired {
			repaired = next
			stats.RepairStrategies = append(stats.RepairStrategies, name)
			stats.ErrorsFixed++
		}
	}

	apply("comments_removed", func(s string) string {
		out, n := removeComments(s)
		stats.CommentsLost += n
		return out
	})
	apply("completion", completeJSON)
	apply("trailing_commas", func(s string) string {
		return trailingCommaPattern.ReplaceAllString(s, "$1")
	})
	apply("key_quotes", func(s string) string {
		return bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
	})
	apply("single_quotes", func(s string) string {
		if strings.Contains(s, `"`) {
			return s
		}
		return singleQuotedPattern.ReplaceAllString(s, `"$1"`)
	})

	if !json.Valid([]byte(repaired)) {
		libraryRepaired, libraryErr := jsonrepair.JSONRepair(repaired)
		if libraryErr == nil && libraryRepaired != repaired {
			repaired = libraryRepaired
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
			stats.ErrorsFixed++
		}
	}

	stats.RepairedBytes = len(repaired)
	stats.RepairTime = time.Since(startTime)

	if !json.Valid([]byte(repaired)) {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}

	return repaired, stats, nil
}

// completeJSON closes any objects or arrays left open, innermost first
func completeJSON(s string) string {
	s = strings.TrimSpace(s)

	var stack []rune
	inString, escaped := false, false
	for _, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// removeComments strips // and /* */ comments outside of string literals
func removeComments(s string) (string, int) {
	removed := 0

	matches := blockCommentPattern.FindAllStringIndex(s, -1)
	removed += len(matches)
	s = blockCommentPattern.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := lineCommentIndex(line); idx >= 0 {
			lines[i] = line[:idx]
			removed++
		}
	}
	return strings.Join(lines, "\n"), removed
}

func lineCommentIndex(line string) int {
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			continue
		}
		if c == '/' && i+1 < len(line) && line[i+1] == '/' {
			return i
		}
	}
	return -1
}
