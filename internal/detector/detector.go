// Package detector flags snippets that look like they contain executable
// or dangerous code. It is a fixed list of regular expressions; nothing is
// parsed or run.
package detector

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var builtin []byte

type Rule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Pattern     string `yaml:"pattern" json:"pattern"`

	re *regexp.Regexp
}

// Detector is safe for concurrent use.
type Detector struct {
	rules []Rule
}

// Parse compiles a rules document. Every pattern is compiled in
// case-insensitive, multi-line mode.
func Parse(data []byte) (*Detector, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("detector: decoding rules: %w", err)
	}

	d := &Detector{}
	for _, r := range doc.Rules {
		re, err := regexp.Compile(`(?im)` + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("detector: rule %q: %w", r.Name, err)
		}
		r.re = re
		d.rules = append(d.rules, r)
	}
	return d, nil
}

var defaultDetector = sync.OnceValue(func() *Detector {
	d, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return d
})

// Default returns the detector built from the embedded rules.yaml.
func Default() *Detector {
	return defaultDetector()
}

// Scan returns the names of all rules that match code, in rule order.
// An empty result means nothing suspicious was found.
func (d *Detector) Scan(code string) []string {
	var hits []string
	for _, r := range d.rules {
		if r.re.MatchString(code) {
			hits = append(hits, r.Name)
		}
	}
	return hits
}

// IsExecutable is Scan reduced to a yes/no answer.
func (d *Detector) IsExecutable(code string) bool {
	for _, r := range d.rules {
		if r.re.MatchString(code) {
			return true
		}
	}
	return false
}

// Rules lists the loaded rules.
func (d *Detector) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	copy(out, d.rules)
	return out
}
