// Package factory builds worker runtimes from supervisor configs.
package factory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/supervisor"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/process"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/remote"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/script"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Runtime kinds
const (
	KindScript  = "script"
	KindProcess = "process"
	KindRemote  = "remote"
)

var (
	ErrUnknownKind = errors.New("unknown worker kind")
	ErrNoContent   = errors.New("script worker needs source or inline content")
	ErrNoCommand   = errors.New("process worker needs a command")
)

// Options configures the factory
type Options struct {
	Hub *remote.Hub
	// BaseDir resolves relative script sources and process working dirs
	BaseDir          string
	Clock            clock.Clock
	MaxCallStackSize int
}

// Factory creates one runtime per worker incarnation
type Factory struct {
	hub       *remote.Hub
	baseDir   string
	clock     clock.Clock
	callStack int
}

// New creates a factory
func New(opts Options) *Factory {
	if opts.Hub == nil {
		opts.Hub = remote.NewHub()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Factory{
		hub:       opts.Hub,
		baseDir:   opts.BaseDir,
		clock:     opts.Clock,
		callStack: opts.MaxCallStackSize,
	}
}

// Hub returns the remote worker hub
func (f *Factory) Hub() *remote.Hub {
	return f.hub
}

// Prepare validates cfg and fills defaults derived from its content,
// such as the window title of an HTML worker
func (f *Factory) Prepare(cfg *supervisor.Config) error {
	if cfg.Kind == "" {
		cfg.Kind = KindScript
	}
	switch cfg.Kind {
	case KindScript:
		content, err := f.content(cfg)
		if err != nil {
			return err
		}
		if cfg.Title == "" {
			cfg.Title = content.Title
		}
	case KindProcess:
		if cfg.Command == "" {
			return ErrNoCommand
		}
	case KindRemote:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	return nil
}

// Build satisfies supervisor.Factory
func (f *Factory) Build(logicalID types.ContextID, cfg supervisor.Config) (worker.Runtime, error) {
	switch cfg.Kind {
	case KindScript, "":
		// Sources are re-read per incarnation so a restart picks up edits
		content, err := f.content(&cfg)
		if err != nil {
			return nil, err
		}
		return script.New(script.Options{
			Content:          content,
			Name:             string(logicalID),
			Clock:            f.clock,
			MaxCallStackSize: f.callStack,
		}), nil
	case KindProcess:
		if cfg.Command == "" {
			return nil, ErrNoCommand
		}
		return process.New(process.Options{
			Command: cfg.Command,
			Args:    cfg.Args,
			Env:     []string{"SHELL_WORKER_ID=" + string(logicalID)},
			Dir:     f.baseDir,
		}), nil
	case KindRemote:
		return f.hub.New(logicalID), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func (f *Factory) content(cfg *supervisor.Config) (*script.Content, error) {
	var data []byte
	switch {
	case cfg.Inline != "":
		data = []byte(cfg.Inline)
	case cfg.Source != "":
		path := cfg.Source
		if !filepath.IsAbs(path) && f.baseDir != "" {
			path = filepath.Join(f.baseDir, path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read worker source: %w", err)
		}
		data = b
	default:
		return nil, ErrNoContent
	}
	return script.Inspect(data)
}
