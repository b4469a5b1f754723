// Package language is the registry of snippet languages: canonical names,
// accepted aliases, file extensions and, for executable languages, the
// sandbox runtime.
package language

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Plaintext is what unknown language names normalize to.
const Plaintext = "plaintext"

//go:embed languages.yaml
var builtin []byte

// Runtime describes how the sandbox runs a language.
type Runtime struct {
	Image   string   `yaml:"image" json:"image"`
	Command []string `yaml:"command" json:"-"`
}

type Language struct {
	Name      string   `yaml:"name" json:"name"`
	Label     string   `yaml:"label" json:"label"`
	Extension string   `yaml:"extension" json:"extension"`
	Aliases   []string `yaml:"aliases" json:"aliases,omitempty"`
	Runtime   *Runtime `yaml:"runtime" json:"runtime,omitempty"`
}

// Runnable reports whether the sandbox can execute this language.
func (l Language) Runnable() bool {
	return l.Runtime != nil && l.Runtime.Image != "" && len(l.Runtime.Command) > 0
}

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	ordered []Language
	byKey   map[string]int // lower-cased name or alias → index into ordered
}

// Parse builds a registry from YAML. Names and aliases must be unique
// across the whole file, and plaintext must be present.
func Parse(data []byte) (*Registry, error) {
	var doc struct {
		Languages []Language `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("language: decoding registry: %w", err)
	}

	r := &Registry{byKey: make(map[string]int)}
	for _, l := range doc.Languages {
		l.Name = strings.ToLower(strings.TrimSpace(l.Name))
		if l.Name == "" {
			return nil, fmt.Errorf("language: entry with empty name")
		}
		idx := len(r.ordered)
		for _, key := range append([]string{l.Name}, l.Aliases...) {
			key = strings.ToLower(strings.TrimSpace(key))
			if _, dup := r.byKey[key]; dup {
				return nil, fmt.Errorf("language: %q is declared twice", key)
			}
			r.byKey[key] = idx
		}
		r.ordered = append(r.ordered, l)
	}
	if _, ok := r.byKey[Plaintext]; !ok {
		return nil, fmt.Errorf("language: registry must define %q", Plaintext)
	}
	return r, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Parse(builtin)
	if err != nil {
		panic(err) // the embedded file is part of the binary
	}
	return r
})

// Default returns the registry built from the embedded languages.yaml.
func Default() *Registry {
	return defaultRegistry()
}

// Lookup finds a language by canonical name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Language, bool) {
	idx, ok := r.byKey[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Language{}, false
	}
	return r.ordered[idx], true
}

// Normalize maps name to its canonical form; unknown or empty names become
// plaintext.
func (r *Registry) Normalize(name string) string {
	if l, ok := r.Lookup(name); ok {
		return l.Name
	}
	return Plaintext
}

// Extension returns the file extension for name, ".txt" when unknown.
func (r *Registry) Extension(name string) string {
	if l, ok := r.Lookup(name); ok && l.Extension != "" {
		return l.Extension
	}
	return ".txt"
}

// All returns every language in file order.
func (r *Registry) All() []Language {
	out := make([]Language, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Runtimes maps canonical names of runnable languages to their runtime.
func (r *Registry) Runtimes() map[string]Runtime {
	out := make(map[string]Runtime)
	for _, l := range r.ordered {
		if l.Runnable() {
			out[l.Name] = *l.Runtime
		}
	}
	return out
}

// RunnableNames lists runnable languages alphabetically.
func (r *Registry) RunnableNames() []string {
	var names []string
	for name := range r.Runtimes() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
