package prompts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrTemplateNotFound is returned when no template is registered under a key.
var ErrTemplateNotFound = errors.New("prompts: template not found")

// Manager resolves templates by key and renders them with variables.
// All query prompt rendering goes through this interface.
type Manager interface {
	Render(promptKey string, vars map[string]any) (string, error)
	Template(promptKey string) (string, error)
	Override(promptKey, body string)
	Keys() []string
}

type manager struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewManager creates a manager seeded with the built-in templates.
func NewManager() (Manager, error) {
	builtins, err := PlaintextTemplates()
	if err != nil {
		return nil, err
	}
	m := &manager{templates: make(map[string]string, len(builtins))}
	for _, t := range builtins {
		m.templates[t.PromptKey] = t.Body
	}
	return m, nil
}

var (
	defaultOnce    sync.Once
	defaultManager Manager
)

// Default returns a process-wide manager with the built-in templates.
// The embedded templates are compiled into the binary, so failure to parse them panics.
func Default() Manager {
	defaultOnce.Do(func() {
		m, err := NewManager()
		if err != nil {
			panic(err)
		}
		defaultManager = m
	})
	return defaultManager
}

// MustRender renders a built-in template with the default manager.
func MustRender(promptKey string, vars map[string]any) string {
	out, err := Default().Render(promptKey, vars)
	if err != nil {
		panic(err)
	}
	return out
}

func (m *manager) Template(promptKey string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.templates[promptKey]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, promptKey)
	}
	return body, nil
}

// Override replaces (or adds) a template body.
func (m *manager) Override(promptKey, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[promptKey] = body
}

func (m *manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.templates))
	for k := range m.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render substitutes placeholders in a single pass, so variable values are
// never rescanned for markers. Values may be string, []string or fmt.Stringer.
func (m *manager) Render(promptKey string, vars map[string]any) (string, error) {
	body, err := m.Template(promptKey)
	if err != nil {
		return "", err
	}
	return RenderBody(body, vars), nil
}

// RenderBody renders an arbitrary template body.
func RenderBody(body string, vars map[string]any) string {
	matches := varPattern.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for _, ph := range placeholdersAt(body, matches) {
		b.WriteString(body[last:ph.start])
		b.WriteString(resolve(ph.Placeholder, vars))
		last = ph.end
	}
	b.WriteString(body[last:])
	return b.String()
}

func resolve(ph Placeholder, vars map[string]any) string {
	joinSep := "\n\n"
	if sep, ok := ph.Options["join"]; ok {
		joinSep = sep
	}
	def := ph.Options["default"]

	var val string
	switch v := vars[ph.Name].(type) {
	case nil:
		val = ""
	case string:
		val = v
	case []string:
		val = strings.Join(v, joinSep)
	case fmt.Stringer:
		val = v.String()
	default:
		val = fmt.Sprint(v)
	}
	if val == "" {
		return def
	}
	return val
}
