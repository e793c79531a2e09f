package glossary

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLoopLimit = 10

// File is the on-disk glossary layout.
//
//	loop_limit: 10
//	terms:
//	  - from: kubernetis
//	    to: Kubernetes
//	  - pattern: '\bdead ?lock\b'
//	    to: Deadlock
//	    flags: ig
type File struct {
	LoopLimit int     `yaml:"loop_limit"`
	Terms     []Entry `yaml:"terms"`
}

// Entry is one correction. Exactly one of From or Pattern is set.
type Entry struct {
	From    string `yaml:"from"`
	Pattern string `yaml:"pattern"`
	To      string `yaml:"to"`
	Flags   string `yaml:"flags"`
}

// Glossary rewrites commonly misheard jargon in transcripts.
type Glossary struct {
	terms     []term
	loopLimit int
}

// Load reads a glossary file. A blank path or a missing file yields an
// empty glossary.
func Load(path string) (*Glossary, error) {
	if strings.TrimSpace(path) == "" {
		return &Glossary{loopLimit: defaultLoopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Glossary{loopLimit: defaultLoopLimit}, nil
		}
		return nil, fmt.Errorf("failed to read glossary %q: %w", path, err)
	}

	g, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse glossary %q: %w", path, err)
	}
	return g, nil
}

// Parse decodes YAML glossary contents.
func Parse(contents []byte) (*Glossary, error) {
	var file File
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, err
	}
	return New(file)
}

// New compiles the entries of file.
func New(file File) (*Glossary, error) {
	loopLimit := file.LoopLimit
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}

	terms := make([]term, 0, len(file.Terms))
	for index, entry := range file.Terms {
		compiled, err := compile(entry)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", index+1, err)
		}
		terms = append(terms, compiled)
	}

	return &Glossary{terms: terms, loopLimit: loopLimit}, nil
}

// Len reports the number of compiled terms.
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.terms)
}

// Apply rewrites text until no term changes it or the loop limit is hit.
func (g *Glossary) Apply(text string) (string, error) {
	if g == nil || len(g.terms) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < g.loopLimit; i++ {
		changed := false
		for _, t := range g.terms {
			next, termChanged := t.apply(result)
			if termChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}

	return result, nil
}
