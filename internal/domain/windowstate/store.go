package windowstate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// DefaultDebounce delays writes after a bounds change
const DefaultDebounce = 500 * time.Millisecond

// BoundsChannel is the built-in invoke channel that reads stored bounds
const BoundsChannel = "window.bounds.get"

// Option configures a Store
type Option func(*Store)

// WithDebounce sets the write delay after Observe
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithClock injects the clock used for debouncing
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMetrics adds metrics tracking to the store
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Store is the in-memory window state table backed by one file
type Store struct {
	path     string
	debounce time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	// writeMu serializes file writes
	writeMu sync.Mutex

	mu      sync.Mutex
	entries map[string]types.Bounds // Protected by mu
	dirty   bool                    // Protected by mu
	timer   clock.Timer             // Protected by mu
}

// Open loads path. A missing file yields an empty store; an unreadable
// one is logged and ignored so a bad file never blocks startup.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		debounce: DefaultDebounce,
		clock:    clock.Real(),
		logger:   zap.NewNop(),
		entries:  make(map[string]types.Bounds),
	}
	for _, opt := range opts {
		opt(s)
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read window state: %w", err)
	}

	entries := make(map[string]types.Bounds)
	if err := toml.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("Ignoring unreadable window state file",
			zap.String("path", path),
			zap.Error(err),
		)
		return s, nil
	}
	s.entries = entries
	s.logger.Info("Window state loaded",
		zap.String("path", path),
		zap.Int("windows", len(entries)),
	)
	return s, nil
}

// Path is the backing file
func (s *Store) Path() string {
	return s.path
}

// Get returns the stored bounds for a window
func (s *Store) Get(windowID string) (types.Bounds, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.entries[windowID]
	return b, ok
}

// All returns a copy of every entry
func (s *Store) All() map[string]types.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.Bounds, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// IDs returns stored window ids, sorted
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for k := range s.entries {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Observe records bounds and schedules a debounced write. Each call
// restarts the delay.
func (s *Store) Observe(windowID string, b types.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[windowID]; ok && current == b {
		return
	}
	s.entries[windowID] = b
	s.dirty = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.debounce, s.debounced)
}

// Put records bounds without scheduling a write
func (s *Store) Put(windowID string, b types.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[windowID]; ok && current == b {
		return
	}
	s.entries[windowID] = b
	s.dirty = true
}

// Flush writes pending changes now
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	data, err := toml.Marshal(s.entries)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode window state: %w", err)
	}
	s.dirty = false
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := s.write(data); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		s.metrics.RecordFlush("error")
		return err
	}
	s.metrics.RecordFlush("ok")
	s.logger.Debug("Window state written", zap.String("path", s.path))
	return nil
}

// Close flushes pending changes
func (s *Store) Close() error {
	return s.Flush()
}

// Handler answers window.bounds.get. Workers may only read their own
// entry; the host may name any window with an "id" field.
func (s *Store) Handler() gateway.Handler {
	return func(ctx context.Context, caller types.ContextID, payload types.Payload) (types.Payload, error) {
		windowID := caller.String()
		if caller.IsHost() {
			requested, _ := payload["id"].(string)
			if requested == "" {
				return nil, fmt.Errorf("%s: missing id", BoundsChannel)
			}
			windowID = requested
		}

		b, ok := s.Get(windowID)
		if !ok {
			return types.Payload{"id": windowID, "found": false}, nil
		}
		out := b.Payload()
		out["id"] = windowID
		out["found"] = true
		return out, nil
	}
}

// Channel is the registration for the built-in bounds channel
func Channel() gateway.Channel {
	return gateway.Channel{
		ID:        BoundsChannel,
		Direction: types.Invoke,
		Allow:     []string{"*"},
		Schema: &gateway.Schema{Fields: map[string]gateway.Field{
			"id": {Kind: gateway.KindString},
		}},
	}
}

func (s *Store) debounced() {
	if err := s.Flush(); err != nil {
		s.logger.Warn("Debounced window state write failed", zap.Error(err))
	}
}

// write must be called with writeMu held
func (s *Store) write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create window state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp window state: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := bytes.NewReader(data).WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp window state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp window state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp window state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename window state into place: %w", err)
	}
	return nil
}
