// Package modes holds the chat-mode (persona) registry. Each mode carries a
// display name, an emoji, a welcome message, and the system prompt prepended
// to every completion request made under it.
package modes

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the fallback mode used whenever a user's mode key is unset
// or unknown. It always exists in the registry.
const DefaultKey = "assistant"

// Mode describes one persona.
type Mode struct {
	Key     string `yaml:"-"`
	Name    string `yaml:"name"`
	Emoji   string `yaml:"emoji"`
	Welcome string `yaml:"welcome_message"`
	Prompt  string `yaml:"prompt_start"`
}

// Page is one page of the registry enumeration, used to render the
// mode-selection keyboard.
type Page struct {
	Modes   []Mode
	HasPrev bool
	HasNext bool
}

// Registry is an ordered, read-only set of modes keyed by mode key.
// Ordering is fixed at construction so pagination is stable across requests.
type Registry struct {
	ordered []Mode
	byKey   map[string]Mode
}

// NewRegistry builds a registry from the given modes, in the given order.
// If no mode uses DefaultKey, the built-in default assistant is prepended
// so that fallback lookups always succeed.
func NewRegistry(modes []Mode) *Registry {
	r := &Registry{byKey: make(map[string]Mode, len(modes)+1)}

	hasDefault := false
	for _, m := range modes {
		if m.Key == DefaultKey {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		r.add(builtinAssistant)
	}
	for _, m := range modes {
		r.add(m)
	}
	return r
}

func (r *Registry) add(m Mode) {
	if _, exists := r.byKey[m.Key]; exists {
		slog.Warn("Duplicate chat mode key ignored", "key", m.Key)
		return
	}
	r.ordered = append(r.ordered, m)
	r.byKey[m.Key] = m
}

// Get returns the mode for key, falling back to the default assistant mode
// when the key is empty or unknown. It never fails.
func (r *Registry) Get(key string) Mode {
	if m, ok := r.byKey[key]; ok {
		return m
	}
	return r.byKey[DefaultKey]
}

// Len returns the number of registered modes.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// GetPage returns the zero-based page of modes with the given page size,
// plus flags telling whether a previous/next page exists. Out-of-range
// pages return an empty mode list.
func (r *Registry) GetPage(page, size int) Page {
	if size <= 0 || page < 0 {
		return Page{}
	}

	start := page * size
	if start >= len(r.ordered) {
		return Page{HasPrev: len(r.ordered) > 0}
	}
	end := start + size
	if end > len(r.ordered) {
		end = len(r.ordered)
	}

	return Page{
		Modes:   r.ordered[start:end],
		HasPrev: page > 0,
		HasNext: end < len(r.ordered),
	}
}

// LoadFile reads a YAML modes file (a mapping of mode key to
// name/emoji/welcome_message/prompt_start) and returns a registry preserving
// the file's ordering. An empty path returns the built-in registry.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(Defaults()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read modes file %s: %w", path, err)
	}

	// Decode via yaml.Node to keep the document order of the mapping;
	// a plain map would shuffle the keyboard between restarts.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse modes file %s: %w", path, err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("modes file %s: top level must be a mapping of mode keys", path)
	}

	doc := root.Content[0]
	var loaded []Mode
	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valNode := doc.Content[i], doc.Content[i+1]

		var m Mode
		if err := valNode.Decode(&m); err != nil {
			return nil, fmt.Errorf("modes file %s: invalid entry %q: %w", path, keyNode.Value, err)
		}
		m.Key = keyNode.Value
		if m.Name == "" || m.Prompt == "" {
			return nil, fmt.Errorf("modes file %s: entry %q must set name and prompt_start", path, keyNode.Value)
		}
		loaded = append(loaded, m)
	}

	slog.Info("Loaded chat modes from file", "path", path, "count", len(loaded))
	return NewRegistry(loaded), nil
}
