package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// DefaultLoadTimeout bounds Loading when Options.LoadTimeout is unset
const DefaultLoadTimeout = 10 * time.Second

// Event is one observable change on a handle
type Event struct {
	Type       EventType
	LogicalID  types.ContextID
	InstanceID id.InstanceID
	State      State
	Previous   State
	Reason     string
	Err        error
	Bounds     types.Bounds
	Minimized  bool
	At         time.Time
}

// Observer receives handle events in order. It may call back into the
// handle; events it causes are delivered after it returns.
type Observer func(Event)

// Options configures a handle
type Options struct {
	LogicalID   types.ContextID
	ParentID    types.ContextID
	Title       string
	Bounds      types.Bounds
	LoadTimeout time.Duration
	SendRate    rate.Limit
	SendBurst   int

	Runtime  Runtime
	Bus      *bus.Bus
	Gateway  *gateway.Gateway
	Clock    clock.Clock
	Logger   *zap.Logger
	Observer Observer
}

// Handle is one incarnation of a worker
type Handle struct {
	id         types.ContextID
	instanceID id.InstanceID
	parentID   types.ContextID
	title      string

	runtime     Runtime
	bus         *bus.Bus
	gateway     *gateway.Gateway
	clock       clock.Clock
	logger      *zap.Logger
	observer    Observer
	loadTimeout time.Duration
	sendRate    rate.Limit
	sendBurst   int

	// emitMu serializes transitions with queueing their events
	emitMu sync.Mutex

	queueMu    sync.Mutex
	queue      []Event // Protected by queueMu
	delivering bool    // Protected by queueMu

	mu         sync.RWMutex
	state      State        // Protected by mu
	bounds     types.Bounds // Protected by mu
	minimized  bool         // Protected by mu
	readySince time.Time    // Protected by mu
	reason     string       // Protected by mu
	err        error        // Protected by mu
	loadTimer  clock.Timer  // Protected by mu
	done       chan struct{}
}

// New creates a handle in Created
func New(opts Options) *Handle {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 1
	}

	instanceID := id.NewInstanceID()
	return &Handle{
		id:          opts.LogicalID,
		instanceID:  instanceID,
		parentID:    opts.ParentID,
		title:       opts.Title,
		runtime:     opts.Runtime,
		bus:         opts.Bus,
		gateway:     opts.Gateway,
		clock:       opts.Clock,
		logger:      opts.Logger.With(zap.String("logical_id", string(opts.LogicalID)), zap.String("instance_id", instanceID.String())),
		observer:    opts.Observer,
		loadTimeout: opts.LoadTimeout,
		sendRate:    opts.SendRate,
		sendBurst:   opts.SendBurst,
		state:       StateCreated,
		bounds:      opts.Bounds,
		done:        make(chan struct{}),
	}
}

// ID is the bus context of the worker
func (h *Handle) ID() types.ContextID { return h.id }

// InstanceID identifies this incarnation
func (h *Handle) InstanceID() id.InstanceID { return h.instanceID }

// ParentID is the logical id of the parent window, if any
func (h *Handle) ParentID() types.ContextID { return h.parentID }

// Title is the window title
func (h *Handle) Title() string { return h.title }

// Done is closed once the handle reaches Closed or Crashed
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the current lifecycle state
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Bounds returns the last known geometry
func (h *Handle) Bounds() types.Bounds {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bounds
}

// Minimized reports whether the last hide was a minimize
func (h *Handle) Minimized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.minimized
}

// ReadySince is when the handle entered Ready, or zero
func (h *Handle) ReadySince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readySince
}

// Reason and Err describe why a handle crashed
func (h *Handle) Reason() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reason
}

func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Start attaches the handle to the bus and starts the runtime
func (h *Handle) Start(ctx context.Context) error {
	if !h.move(StateLoading, "", nil, StateCreated) {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, h.State())
	}

	var attachOpts []bus.AttachOption
	if h.sendRate > 0 {
		attachOpts = append(attachOpts, bus.WithRateLimit(h.sendRate, h.sendBurst))
	}
	if err := h.bus.Attach(h, attachOpts...); err != nil {
		h.crash(ReasonStartFailed, err)
		return err
	}

	h.mu.Lock()
	h.loadTimer = h.clock.AfterFunc(h.loadTimeout, h.loadExpired)
	h.mu.Unlock()

	if err := h.runtime.Start(ctx, link{h}); err != nil {
		h.crash(ReasonStartFailed, err)
		return fmt.Errorf("start runtime: %w", err)
	}
	return nil
}

// Deliver forwards a bus message to the runtime
func (h *Handle) Deliver(msg *types.Message) error {
	if h.State().Terminal() {
		return nil
	}
	return h.runtime.Deliver(msg)
}

// Show makes the worker visible
func (h *Handle) Show() error {
	return h.show(true)
}

// Hide suspends the worker
func (h *Handle) Hide() error {
	return h.hide(false, true)
}

// Minimize suspends the worker and marks it minimized
func (h *Handle) Minimize() error {
	return h.hide(true, true)
}

// RequestClose starts a graceful shutdown. Closing an already closing
// or terminal handle is a no-op. Once the handle is Closing the runtime
// is always asked to exit, and killed if it refuses.
func (h *Handle) RequestClose() error {
	state := h.State()
	if state == StateClosing || state.Terminal() {
		return nil
	}
	switch state {
	case StateCreated:
		// Never started, so there is no runtime to wait for
		if h.move(StateClosing, "", nil, StateCreated) {
			h.move(StateClosed, "", nil, StateClosing)
		}
		return nil
	case StateLoading:
		if !h.move(StateClosing, "", nil, StateLoading) {
			return nil
		}
	default:
		h.emitMu.Lock()
		h.emit(Event{Type: EventBeforeClose, State: state, Bounds: h.Bounds(), Minimized: h.Minimized()})
		h.emitMu.Unlock()
		h.deliver()
		if !h.move(StateClosing, "", nil, StateReady, StateActive, StateSuspended) {
			return nil
		}
	}

	if err := h.runtime.Control(Control{Kind: ControlClose}); err != nil {
		h.logger.Warn("Runtime refused close request, killing", zap.Error(err))
		h.Kill()
		return fmt.Errorf("close request: %w", err)
	}
	return nil
}

// Kill force-terminates the runtime. Best effort.
func (h *Handle) Kill() {
	if h.State().Terminal() {
		return
	}
	if err := h.runtime.Kill(); err != nil {
		h.logger.Warn("Kill failed", zap.Error(err))
	}
}

// UpdateBounds records geometry and reports it to the observer
func (h *Handle) UpdateBounds(b types.Bounds) {
	h.emitMu.Lock()
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		h.emitMu.Unlock()
		return
	}
	h.bounds = b
	state, minimized := h.state, h.minimized
	h.mu.Unlock()

	h.emit(Event{Type: EventBounds, State: state, Bounds: b, Minimized: minimized})
	h.emitMu.Unlock()
	h.deliver()
}

// SetBounds records geometry and asks the runtime to apply it
func (h *Handle) SetBounds(b types.Bounds) error {
	if h.State().Terminal() {
		return fmt.Errorf("%w: %s", ErrInvalidState, h.State())
	}
	h.UpdateBounds(b)
	return h.runtime.Control(Control{Kind: ControlBounds, Bounds: b})
}

func (h *Handle) show(forward bool) error {
	if !h.move(StateActive, "", nil, StateReady, StateSuspended) {
		if h.State() == StateActive {
			return nil
		}
		return fmt.Errorf("%w: show from %s", ErrInvalidState, h.State())
	}
	if forward {
		return h.runtime.Control(Control{Kind: ControlVisibility, Visible: true})
	}
	return nil
}

func (h *Handle) hide(minimize, forward bool) error {
	if h.State() == StateSuspended {
		if minimize {
			h.mu.Lock()
			h.minimized = true
			h.mu.Unlock()
		}
		return nil
	}

	setMinimized := func() { h.minimized = minimize }
	if !h.moveWith(StateSuspended, "", nil, setMinimized, StateReady, StateActive) {
		return fmt.Errorf("%w: hide from %s", ErrInvalidState, h.State())
	}
	if forward {
		return h.runtime.Control(Control{Kind: ControlVisibility, Visible: false})
	}
	return nil
}

func (h *Handle) markReady() {
	if !h.move(StateReady, "", nil, StateLoading) {
		h.logger.Debug("Ignoring ready signal", zap.String("state", string(h.State())))
	}
}

func (h *Handle) loadExpired() {
	if h.crash(ReasonLoadTimeout, fmt.Errorf("%w after %s", ErrLoadTimeout, h.loadTimeout)) {
		if err := h.runtime.Kill(); err != nil {
			h.logger.Warn("Kill after load timeout failed", zap.Error(err))
		}
	}
}

func (h *Handle) exited(err error) {
	if h.move(StateClosed, "", err, StateClosing) {
		return
	}
	if err == nil {
		err = ErrExited
	} else if !errors.Is(err, ErrExited) {
		err = fmt.Errorf("%w: %v", ErrExited, err)
	}
	h.crash(ReasonExited, err)
}

func (h *Handle) crash(reason string, err error) bool {
	return h.move(StateCrashed, reason, err,
		StateCreated, StateLoading, StateReady, StateActive, StateSuspended, StateClosing)
}

// move performs one transition if the current state is in from
func (h *Handle) move(to State, reason string, cause error, from ...State) bool {
	return h.moveWith(to, reason, cause, nil, from...)
}

// moveWith is move with apply run under the state lock
func (h *Handle) moveWith(to State, reason string, cause error, apply func(), from ...State) bool {
	h.emitMu.Lock()
	h.mu.Lock()
	prev := h.state
	if !prev.in(from...) {
		h.mu.Unlock()
		h.emitMu.Unlock()
		return false
	}
	now := h.clock.Now()
	h.state = to
	if apply != nil {
		apply()
	}
	switch to {
	case StateReady:
		h.readySince = now
	case StateActive:
		h.minimized = false
	case StateCrashed:
		h.reason = reason
		h.err = cause
	}
	var timer clock.Timer
	if to != StateLoading && h.loadTimer != nil {
		timer = h.loadTimer
		h.loadTimer = nil
	}
	bounds, minimized := h.bounds, h.minimized
	h.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if to.Terminal() {
		h.bus.Detach(h.id)
		close(h.done)
	}

	fields := []zap.Field{zap.String("from", string(prev)), zap.String("to", string(to))}
	if to == StateCrashed {
		h.logger.Warn("Worker crashed", append(fields, zap.String("reason", reason), zap.Error(cause))...)
	} else {
		h.logger.Debug("Worker transition", fields...)
	}

	h.emit(Event{
		Type:      EventState,
		State:     to,
		Previous:  prev,
		Reason:    reason,
		Err:       cause,
		Bounds:    bounds,
		Minimized: minimized,
		At:        now,
	})
	h.emitMu.Unlock()
	h.deliver()
	return true
}

// emit queues ev for the observer. It must be called with emitMu held so
// the queue follows transition order.
func (h *Handle) emit(ev Event) {
	if h.observer == nil {
		return
	}
	ev.LogicalID = h.id
	ev.InstanceID = h.instanceID
	if ev.At.IsZero() {
		ev.At = h.clock.Now()
	}
	h.queueMu.Lock()
	h.queue = append(h.queue, ev)
	h.queueMu.Unlock()
}

// deliver hands queued events to the observer without holding emitMu,
// so observers may call back into the handle. Only one goroutine
// delivers at a time; events queued meanwhile, including those caused by
// the observer itself, are delivered by it after the current one returns.
func (h *Handle) deliver() {
	h.queueMu.Lock()
	if h.delivering {
		h.queueMu.Unlock()
		return
	}
	h.delivering = true
	for len(h.queue) > 0 {
		ev := h.queue[0]
		h.queue[0] = Event{}
		h.queue = h.queue[1:]
		h.queueMu.Unlock()
		h.observer(ev)
		h.queueMu.Lock()
	}
	h.delivering = false
	h.queueMu.Unlock()
}
