package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

var (
	ErrStopped = errors.New("script runtime stopped")
	ErrKilled  = errors.New("script runtime killed")
)

// Options configures a script runtime
type Options struct {
	Content          *Content
	Name             string
	Clock            clock.Clock
	MaxCallStackSize int
}

// Runtime runs one worker's scripts on a private event loop
type Runtime struct {
	content   *Content
	name      string
	clock     clock.Clock
	callStack int

	vm      *goja.Runtime
	link    worker.Link
	logger  *zap.Logger
	surface map[string]bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	queue  []func() // Protected by mu
	closed bool     // Protected by mu
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	// Owned by the loop goroutine
	listeners       map[string][]goja.Callable
	handlers        map[string]goja.Callable
	windowListeners map[string][]goja.Callable
	timers          map[int64]clock.Timer
	nextTimer       int64
	bounds          types.Bounds
}

// New creates a runtime for prepared content
func New(opts Options) *Runtime {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.MaxCallStackSize <= 0 {
		opts.MaxCallStackSize = 1024
	}
	if opts.Content == nil {
		opts.Content = &Content{Type: ContentJavaScript}
	}
	return &Runtime{
		content:         opts.Content,
		name:            opts.Name,
		clock:           opts.Clock,
		callStack:       opts.MaxCallStackSize,
		wake:            make(chan struct{}, 1),
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
		listeners:       make(map[string][]goja.Callable),
		handlers:        make(map[string]goja.Callable),
		windowListeners: make(map[string][]goja.Callable),
		timers:          make(map[int64]clock.Timer),
	}
}

// Start builds the VM and queues the content scripts
func (r *Runtime) Start(ctx context.Context, link worker.Link) error {
	r.link = link
	r.logger = link.Logger().With(zap.String("runtime", "script"))
	r.bounds = link.Bounds()
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	r.surface = make(map[string]bool)
	for _, ch := range link.Surface() {
		r.surface[ch.ID] = true
	}

	r.vm = goja.New()
	r.vm.SetMaxCallStackSize(r.callStack)
	if err := r.setupGlobals(); err != nil {
		return fmt.Errorf("setup script globals: %w", err)
	}

	go r.loop()

	scripts := append([]string(nil), r.content.Scripts...)
	r.enqueue(func() {
		for i, src := range scripts {
			name := fmt.Sprintf("%s#%d", r.name, i)
			if _, err := r.vm.RunScript(name, src); err != nil {
				r.exit(fmt.Errorf("script %s: %w", name, err))
				return
			}
		}
	})
	return nil
}

// Deliver queues a bus message for the worker's listeners
func (r *Runtime) Deliver(msg *types.Message) error {
	if !r.enqueue(func() { r.deliver(msg) }) {
		return ErrStopped
	}
	return nil
}

// Control queues a host hint
func (r *Runtime) Control(c worker.Control) error {
	ok := r.enqueue(func() {
		switch c.Kind {
		case worker.ControlBounds:
			r.bounds = c.Bounds
			r.emitWindow("bounds", map[string]interface{}(c.Bounds.Payload()))
		case worker.ControlVisibility:
			r.emitWindow("visibility", map[string]interface{}{"visible": c.Visible})
		case worker.ControlClose:
			r.emitWindow("close", map[string]interface{}{})
			r.exit(nil)
		}
	})
	if !ok {
		return ErrStopped
	}
	return nil
}

// Kill interrupts running code and stops the loop
func (r *Runtime) Kill() error {
	r.exit(ErrKilled)
	if r.vm != nil {
		r.vm.Interrupt(ErrKilled.Error())
	}
	return nil
}

// Done is closed when the loop goroutine has returned
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

func (r *Runtime) enqueue(job func()) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, job)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

func (r *Runtime) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		case <-r.wake:
		}

		for {
			r.mu.Lock()
			if r.closed || len(r.queue) == 0 {
				r.mu.Unlock()
				break
			}
			job := r.queue[0]
			r.queue[0] = nil
			r.queue = r.queue[1:]
			r.mu.Unlock()

			job()
		}
	}
}

// exit stops the loop once and reports to the link. err nil is a
// graceful exit.
func (r *Runtime) exit(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.queue = nil
		r.mu.Unlock()

		close(r.quit)
		if r.cancel != nil {
			r.cancel()
		}
		if r.link != nil {
			r.link.Exited(err)
		}
	})
}

func (r *Runtime) deliver(msg *types.Message) {
	payload := r.vm.ToValue(map[string]interface{}(msg.Payload))

	if msg.Kind == types.KindRequest {
		r.answer(msg.CorrelationID, msg.Channel, payload)
		return
	}
	for _, fn := range r.listeners[msg.Channel] {
		if _, err := fn(goja.Undefined(), payload); err != nil {
			r.logger.Warn("Listener threw", zap.String("channel", msg.Channel), zap.Error(err))
		}
	}
}

func (r *Runtime) answer(correlationID, channel string, payload goja.Value) {
	handler, ok := r.handlers[channel]
	if !ok {
		r.link.Respond(correlationID, nil, fmt.Sprintf("no handler for %q", channel))
		return
	}

	val, err := handler(goja.Undefined(), payload)
	if err != nil {
		r.link.Respond(correlationID, nil, err.Error())
		return
	}
	r.settle(val,
		func(v goja.Value) { r.link.Respond(correlationID, exportPayload(v), "") },
		func(reason goja.Value) { r.link.Respond(correlationID, nil, reasonString(reason)) },
	)
}

// settle calls ok or fail once val, possibly a promise, is resolved
func (r *Runtime) settle(val goja.Value, ok, fail func(goja.Value)) {
	if val == nil {
		ok(goja.Undefined())
		return
	}
	p, isPromise := val.Export().(*goja.Promise)
	if !isPromise {
		ok(val)
		return
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		ok(p.Result())
	case goja.PromiseStateRejected:
		fail(p.Result())
	default:
		then, _ := goja.AssertFunction(val.ToObject(r.vm).Get("then"))
		onFulfilled := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			ok(call.Argument(0))
			return goja.Undefined()
		})
		onRejected := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			fail(call.Argument(0))
			return goja.Undefined()
		})
		if _, err := then(val, onFulfilled, onRejected); err != nil {
			fail(r.vm.ToValue(err.Error()))
		}
	}
}

func (r *Runtime) emitWindow(event string, data map[string]interface{}) {
	arg := r.vm.ToValue(data)
	for _, fn := range r.windowListeners[event] {
		if _, err := fn(goja.Undefined(), arg); err != nil {
			r.logger.Warn("Window listener threw", zap.String("event", event), zap.Error(err))
		}
	}
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout requires a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	r.nextTimer++
	timerID := r.nextTimer
	r.timers[timerID] = r.clock.AfterFunc(delay, func() {
		r.enqueue(func() {
			if _, live := r.timers[timerID]; !live {
				return
			}
			delete(r.timers, timerID)
			if _, err := fn(goja.Undefined(), args...); err != nil {
				r.logger.Warn("Timer callback threw", zap.Error(err))
			}
		})
	})
	return r.vm.ToValue(timerID)
}

func (r *Runtime) clearTimeout(call goja.FunctionCall) goja.Value {
	timerID := call.Argument(0).ToInteger()
	if t, ok := r.timers[timerID]; ok {
		t.Stop()
		delete(r.timers, timerID)
	}
	return goja.Undefined()
}

func exportPayload(v goja.Value) types.Payload {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if m, ok := v.Export().(map[string]interface{}); ok {
		return types.Payload(m)
	}
	return types.Payload{"value": v.Export()}
}

func reasonString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "rejected"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return strings.TrimSpace(v.String())
}
