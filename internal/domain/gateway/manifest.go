package gateway

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Manifest is the on-disk channel declaration
type Manifest struct {
	Strict   bool      `yaml:"strict"`
	Channels []Channel `yaml:"channels"`
}

// ParseManifest decodes a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse channel manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes a YAML manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel manifest: %w", err)
	}
	return ParseManifest(data)
}

// Apply registers every manifest channel, binding handlers by channel id.
// A manifest marked strict makes all of its channels strict.
func (g *Gateway) Apply(m *Manifest, handlers map[string]Handler) error {
	for _, ch := range m.Channels {
		if m.Strict {
			ch.Strict = true
		}
		var opts []RegisterOption
		if h, ok := handlers[ch.ID]; ok {
			opts = append(opts, WithHandler(h))
		}
		if err := g.Register(ch, opts...); err != nil {
			return err
		}
	}
	return nil
}
