package supervisor

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Config describes one worker
type Config struct {
	Kind      string          `yaml:"kind" json:"kind"`
	Source    string          `yaml:"source" json:"source,omitempty"`
	Inline    string          `yaml:"inline" json:"inline,omitempty"`
	Command   string          `yaml:"command" json:"command,omitempty"`
	Args      []string        `yaml:"args" json:"args,omitempty"`
	ParentID  types.ContextID `yaml:"parent_id" json:"parent_id,omitempty"`
	Essential bool            `yaml:"essential" json:"essential"`
	Title     string          `yaml:"title" json:"title,omitempty"`
	// Bounds is used when the window state store has no entry
	Bounds *types.Bounds `yaml:"bounds" json:"bounds,omitempty"`

	SendRate    rate.Limit    `yaml:"-" json:"-"`
	SendBurst   int           `yaml:"-" json:"-"`
	LoadTimeout time.Duration `yaml:"-" json:"-"`
}

// Factory builds the runtime for one incarnation of a worker
type Factory func(logicalID types.ContextID, cfg Config) (worker.Runtime, error)

// ManifestEntry is one worker in a manifest: a logical id plus its config
type ManifestEntry struct {
	ID     types.ContextID `yaml:"id"`
	Config `yaml:",inline"`
}

// Manifest lists workers created at startup, parents before children
type Manifest struct {
	Workers []ManifestEntry `yaml:"workers"`
}

// ParseManifest decodes a YAML worker manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse worker manifest: %w", err)
	}
	seen := make(map[types.ContextID]bool, len(m.Workers))
	for _, s := range m.Workers {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: manifest entry without id", ErrInvalidLogicalID)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrDuplicateLogicalID, s.ID)
		}
		if s.ParentID != "" && !seen[s.ParentID] {
			return nil, fmt.Errorf("%w: %s must follow its parent %s", ErrUnknownWorker, s.ID, s.ParentID)
		}
		seen[s.ID] = true
	}
	return &m, nil
}

// LoadManifest reads and decodes a YAML worker manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker manifest: %w", err)
	}
	return ParseManifest(data)
}
