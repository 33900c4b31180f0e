package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/utils"
)

// Op is the side of a channel a context wants to act on
type Op int

const (
	OpSend Op = iota
	OpReceive
)

func (o Op) String() string {
	if o == OpReceive {
		return "receive"
	}
	return "send"
}

// Handler answers requests made on an invoke or worker->host channel
type Handler func(ctx context.Context, caller types.ContextID, payload types.Payload) (types.Payload, error)

// Channel is a named, typed route between host and workers
type Channel struct {
	ID        string          `yaml:"id" json:"id"`
	Direction types.Direction `yaml:"direction" json:"direction"`
	Schema    *Schema         `yaml:"schema" json:"schema,omitempty"`
	Allow     []string        `yaml:"allow" json:"allow"`
	Strict    bool            `yaml:"strict" json:"strict"`
}

// Entry is a registered channel plus its host handler
type Entry struct {
	Channel
	Handler Handler
}

// RegisterOption customizes a registration
type RegisterOption func(*Entry)

// WithHandler binds the host-side handler for requests on the channel
func WithHandler(h Handler) RegisterOption {
	return func(e *Entry) {
		e.Handler = h
	}
}

// Option configures a Gateway
type Option func(*Gateway)

// WithStrict makes every schema mismatch fail the send
func WithStrict(strict bool) Option {
	return func(g *Gateway) {
		g.strict = strict
	}
}

// Gateway is the channel registration table and authorizer
type Gateway struct {
	mu      sync.RWMutex
	entries map[string]*Entry // Protected by mu
	frozen  bool              // Protected by mu
	strict  bool
	logger  *zap.Logger
}

// New creates an empty, unfrozen gateway
func New(logger *zap.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		entries: make(map[string]*Entry),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a channel. Only valid before Freeze.
func (g *Gateway) Register(ch Channel, opts ...RegisterOption) error {
	if err := validateChannel(ch); err != nil {
		return err
	}

	entry := &Entry{Channel: ch}
	entry.Allow = append([]string(nil), ch.Allow...)
	for _, opt := range opts {
		opt(entry)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrGatewayFrozen, ch.ID)
	}
	if _, exists := g.entries[ch.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateChannel, ch.ID)
	}
	g.entries[ch.ID] = entry

	g.logger.Debug("Channel registered",
		zap.String("channel", ch.ID),
		zap.String("direction", string(ch.Direction)),
		zap.Strings("allow", ch.Allow),
	)
	return nil
}

// Freeze makes the table read-only. Idempotent.
func (g *Gateway) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.frozen {
		g.frozen = true
		g.logger.Info("Capability gateway frozen", zap.Int("channels", len(g.entries)))
	}
}

// Frozen reports whether Freeze has been called
func (g *Gateway) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Lookup returns a registered channel
func (g *Gateway) Lookup(channel string) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.entries[channel]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Authorize reports whether ctx may perform op on channel. Unknown
// channels and unlisted contexts are denied.
func (g *Gateway) Authorize(ctx types.ContextID, channel string, op Op) bool {
	g.mu.RLock()
	entry, ok := g.entries[channel]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	return entry.permits(ctx, op)
}

// Check is Authorize returning a wrapped ErrChannelDenied
func (g *Gateway) Check(ctx types.ContextID, channel string, op Op) error {
	if g.Authorize(ctx, channel, op) {
		return nil
	}
	g.logger.Debug("Channel denied",
		zap.String("context", ctx.String()),
		zap.String("channel", channel),
		zap.Stringer("op", op),
	)
	return fmt.Errorf("%w: %s may not %s on %q", ErrChannelDenied, ctx, op, channel)
}

// Validate checks payload against the channel schema. Mismatches are
// logged and allowed unless the gateway or the channel is strict.
func (g *Gateway) Validate(channel string, payload types.Payload) error {
	g.mu.RLock()
	entry, ok := g.entries[channel]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrChannelDenied, channel)
	}
	// Depth is enforced even in advisory mode.
	if err := utils.ValidateDepth(map[string]interface{}(payload), utils.MaxPayloadDepth); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, channel, err)
	}

	err := entry.Schema.Check(payload)
	if err == nil {
		return nil
	}
	if g.strict || entry.Strict {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, channel, err)
	}
	g.logger.Warn("Payload does not match channel schema",
		zap.String("channel", channel),
		zap.Error(err),
	)
	return nil
}

// Surface lists the channels ctx may use in either role, sorted by id.
// Runtimes expose exactly this set inside the worker.
func (g *Gateway) Surface(ctx types.ContextID) []Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Channel
	for _, entry := range g.entries {
		if entry.permits(ctx, OpSend) || entry.permits(ctx, OpReceive) {
			out = append(out, entry.Channel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Channels lists every registered channel, sorted by id
func (g *Gateway) Channels() []Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Channel, 0, len(g.entries))
	for _, entry := range g.entries {
		out = append(out, entry.Channel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Entry) permits(ctx types.ContextID, op Op) bool {
	if ctx.IsHost() {
		switch op {
		case OpSend:
			return e.Direction == types.HostToWorker || e.Direction == types.Invoke
		case OpReceive:
			return e.Direction == types.WorkerToHost || e.Direction == types.Invoke
		}
		return false
	}

	switch op {
	case OpSend:
		if e.Direction != types.WorkerToHost && e.Direction != types.Invoke {
			return false
		}
	case OpReceive:
		if e.Direction != types.HostToWorker && e.Direction != types.Invoke {
			return false
		}
	default:
		return false
	}

	for _, pattern := range e.Allow {
		if pattern == string(ctx) {
			return true
		}
		if matched, _ := doublestar.Match(pattern, string(ctx)); matched {
			return true
		}
	}
	return false
}

func validateChannel(ch Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidChannel)
	}
	if err := utils.ValidateChannelID(ch.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChannel, err)
	}
	if !ch.Direction.Valid() {
		return fmt.Errorf("%w: %q has unknown direction %q", ErrInvalidChannel, ch.ID, ch.Direction)
	}
	for _, pattern := range ch.Allow {
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q has bad allow pattern %q", ErrInvalidChannel, ch.ID, pattern)
		}
	}
	if ch.Schema != nil {
		for name, field := range ch.Schema.Fields {
			if !field.Kind.valid() {
				return fmt.Errorf("%w: %q field %q has unknown kind %q", ErrInvalidChannel, ch.ID, name, field.Kind)
			}
		}
	}
	return nil
}
