package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider holds the semantic description of the warehouse (tables, columns,
// relationships) that grounds every LLM prompt. It is constructed once and
// injected into the services that need it; nothing in this package reads a
// fixed path at import time.
type Provider struct {
	doc string
}

// Load reads and validates the semantic schema YAML at path.
func Load(path string) (*Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read semantic schema: %w", err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("semantic schema is not valid YAML: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("semantic schema %q is empty", path)
	}
	return &Provider{doc: string(raw)}, nil
}

// FromString wraps an already-assembled schema description, used for
// uploaded datasets and test fixtures.
func FromString(doc string) *Provider {
	return &Provider{doc: doc}
}

// Context returns the schema text to embed in prompts.
func (p *Provider) Context() string {
	return p.doc
}
