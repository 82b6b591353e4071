package prompts

import (
	"regexp"
	"strings"
)

// Placeholder represents a single {{VAR:...}} occurrence with parsed options.
type Placeholder struct {
	Raw     string
	Name    string
	Options map[string]string // join, default
}

type located struct {
	Placeholder
	start, end int
}

var (
	// {{VAR:name|key=value|key2="quoted value"}}
	varPattern = regexp.MustCompile(`\{\{VAR:([a-zA-Z0-9_\-]+)((?:\|[^}]+)?)}}`)
	optPattern = regexp.MustCompile(`\|([^=|]+)=([^|]+)`)
)

// ParsePlaceholders returns all placeholder occurrences in order of appearance.
func ParsePlaceholders(body string) []Placeholder {
	found := placeholdersAt(body, varPattern.FindAllStringSubmatchIndex(body, -1))
	out := make([]Placeholder, 0, len(found))
	for _, l := range found {
		out = append(out, l.Placeholder)
	}
	return out
}

// Variables returns the distinct variable names used by a template body.
func Variables(body string) []string {
	seen := map[string]bool{}
	var names []string
	for _, ph := range ParsePlaceholders(body) {
		if !seen[ph.Name] {
			seen[ph.Name] = true
			names = append(names, ph.Name)
		}
	}
	return names
}

func placeholdersAt(body string, matches [][]int) []located {
	out := make([]located, 0, len(matches))
	for _, idx := range matches {
		// [fullStart, fullEnd, nameStart, nameEnd, optsStart, optsEnd]
		opts := map[string]string{}
		if len(idx) >= 6 && idx[4] != -1 {
			for _, seg := range optPattern.FindAllStringSubmatch(body[idx[4]:idx[5]], -1) {
				opts[strings.ToLower(strings.TrimSpace(seg[1]))] = decodeEscapes(unquote(strings.TrimSpace(seg[2])))
			}
		}
		out = append(out, located{
			Placeholder: Placeholder{Raw: body[idx[0]:idx[1]], Name: body[idx[2]:idx[3]], Options: opts},
			start:       idx[0],
			end:         idx[1],
		})
	}
	return out
}

func unquote(val string) string {
	if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
		return val[1 : len(val)-1]
	}
	return val
}

// decodeEscapes handles \n, \t, \r and \\; other escapes are kept as-is
func decodeEscapes(s string) string {
	b := strings.Builder{}
	b.Grow(len(s))
	esc := false
	for _, r := range s {
		if !esc {
			if r == '\\' {
				esc = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
		esc = false
	}
	if esc {
		b.WriteByte('\\')
	}
	return b.String()
}
