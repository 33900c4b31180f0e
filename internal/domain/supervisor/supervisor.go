package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/windowstate"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/utils"
)

// DefaultForceKillTimeout is how long a close waits before killing
const DefaultForceKillTimeout = 5 * time.Second

// Options wires a Supervisor
type Options struct {
	Gateway *gateway.Gateway
	Bus     *bus.Bus
	Store   *windowstate.Store
	Factory Factory

	Policy           resilience.Policy
	LoadTimeout      time.Duration
	ForceKillTimeout time.Duration

	// SendRate and SendBurst apply to workers whose config sets no limit
	SendRate  rate.Limit
	SendBurst int

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Supervisor creates, restarts and closes workers
type Supervisor struct {
	gateway   *gateway.Gateway
	bus       *bus.Bus
	store     *windowstate.Store
	factory   Factory
	policy    resilience.Policy
	loadTime  time.Duration
	forceKill time.Duration
	sendRate  rate.Limit
	sendBurst int
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu            sync.Mutex
	workers       map[types.ContextID]*Worker // Protected by mu
	unrecoverable map[types.ContextID]error   // Protected by mu
	closed        bool                        // Protected by mu

	subMu       sync.RWMutex
	subscribers []subscriber // Protected by subMu
	subID       uint64       // Protected by subMu
}

// New creates a supervisor
func New(opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ForceKillTimeout <= 0 {
		opts.ForceKillTimeout = DefaultForceKillTimeout
	}
	if opts.Policy == (resilience.Policy{}) {
		opts.Policy = resilience.DefaultPolicy()
	}
	return &Supervisor{
		gateway:       opts.Gateway,
		bus:           opts.Bus,
		store:         opts.Store,
		factory:       opts.Factory,
		policy:        opts.Policy,
		loadTime:      opts.LoadTimeout,
		forceKill:     opts.ForceKillTimeout,
		sendRate:      opts.SendRate,
		sendBurst:     opts.SendBurst,
		clock:         opts.Clock,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		workers:       make(map[types.ContextID]*Worker),
		unrecoverable: make(map[types.ContextID]error),
	}
}

// CreateWorker registers and starts a worker. The gateway is frozen on
// the first call. If the runtime fails to start the Worker is returned
// together with the error and follows the normal crash path.
func (s *Supervisor) CreateWorker(ctx context.Context, logicalID types.ContextID, cfg Config) (*Worker, error) {
	if logicalID.IsHost() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogicalID, logicalID)
	}
	if err := utils.ValidateID(string(logicalID), "logical id"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLogicalID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.gateway.Freeze()

	w := &Worker{
		LogicalID: logicalID,
		Config:    cfg,
		sup:       s,
		backoff:   resilience.NewBackoff(s.policy),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := s.workers[logicalID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLogicalID, logicalID)
	}
	if cfg.ParentID != "" {
		if _, ok := s.workers[cfg.ParentID]; !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: parent %s", ErrUnknownWorker, cfg.ParentID)
		}
	}
	s.workers[logicalID] = w
	delete(s.unrecoverable, logicalID)
	live := len(s.workers)
	s.mu.Unlock()

	s.metrics.SetWorkersLive(live)
	s.logger.Info("Creating worker",
		zap.String("logical_id", string(logicalID)),
		zap.String("kind", cfg.Kind),
		zap.Bool("essential", cfg.Essential),
	)
	s.publish(LifecycleEvent{Type: EventCreated, LogicalID: logicalID, State: worker.StateCreated})

	h, err := s.spawn(context.WithoutCancel(ctx), w)
	if err != nil && h == nil {
		// No runtime was built, so there is nothing to restart
		s.remove(w)
		w.finish(err)
		return nil, err
	}
	return w, err
}

// Get returns a live worker
func (s *Supervisor) Get(logicalID types.ContextID) (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[logicalID]
	return w, ok
}

// Workers lists live workers sorted by logical id
func (s *Supervisor) Workers() []*Worker {
	s.mu.Lock()
	out := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LogicalID < out[j].LogicalID })
	return out
}

// Children lists live workers whose parent is logicalID
func (s *Supervisor) Children(logicalID types.ContextID) []*Worker {
	var out []*Worker
	for _, w := range s.Workers() {
		if w.Config.ParentID == logicalID {
			out = append(out, w)
		}
	}
	return out
}

// Unrecoverable lists essential workers that gave up restarting
func (s *Supervisor) Unrecoverable() []types.ContextID {
	s.mu.Lock()
	out := make([]types.ContextID, 0, len(s.unrecoverable))
	for logicalID := range s.unrecoverable {
		out = append(out, logicalID)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Degraded reports whether any essential worker is unrecoverable
func (s *Supervisor) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unrecoverable) > 0
}

// OnWorkerLifecycle subscribes to lifecycle events
func (s *Supervisor) OnWorkerLifecycle(fn LifecycleFunc) (unsubscribe func()) {
	s.subMu.Lock()
	s.subID++
	sid := s.subID
	s.subscribers = append(s.subscribers, subscriber{id: sid, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == sid {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// CloseWorker closes a worker after its children. It waits for each
// to exit, killing those that outlast the force-kill timeout or ctx.
// A worker that ignores the kill gets one more force-kill timeout
// before it is given up, so one worker may take up to twice the
// timeout.
func (s *Supervisor) CloseWorker(ctx context.Context, logicalID types.ContextID) error {
	w, ok := s.Get(logicalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, logicalID)
	}

	var errs error
	for _, child := range s.Children(logicalID) {
		if err := s.CloseWorker(ctx, child.LogicalID); err != nil && !errors.Is(err, ErrUnknownWorker) {
			errs = multierr.Append(errs, err)
		}
	}
	return multierr.Append(errs, s.closeOne(ctx, w))
}

// CloseAll closes every worker in parallel and stops accepting new ones.
// Workers are closed as by CloseWorker, so with a done ctx every worker
// is asked to close and then killed at once.
func (s *Supervisor) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, w := range s.Workers() {
		if parent := w.Config.ParentID; parent != "" {
			if _, ok := s.Get(parent); ok {
				// Closed by its parent
				continue
			}
		}
		logicalID := w.LogicalID
		g.Go(func() error {
			err := s.CloseWorker(ctx, logicalID)
			if err != nil && !errors.Is(err, ErrUnknownWorker) {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.store != nil {
		errs = multierr.Append(errs, s.store.Flush())
	}
	return errs
}

func (s *Supervisor) closeOne(ctx context.Context, w *Worker) error {
	w.mu.Lock()
	w.closing = true
	pending := w.restartTimer != nil
	if pending {
		w.restartTimer.Stop()
		w.restartTimer = nil
	}
	h := w.handle
	w.mu.Unlock()

	if h == nil || h.State().Terminal() {
		// Waiting on a restart, or never started
		s.remove(w)
		w.finish(nil)
		return nil
	}

	if err := h.RequestClose(); err != nil {
		s.logger.Warn("Close request failed",
			zap.String("logical_id", string(w.LogicalID)),
			zap.Error(err),
		)
	}
	// A done ctx skips the graceful wait but never the kill
	if s.wait(ctx, w, h) {
		return nil
	}

	s.logger.Warn("Worker did not close in time, killing",
		zap.String("logical_id", string(w.LogicalID)),
		zap.Duration("timeout", s.forceKill),
	)
	h.Kill()
	if s.wait(context.WithoutCancel(ctx), w, h) {
		return nil
	}

	// Give up on the runtime and release the id
	s.bus.Detach(w.LogicalID)
	s.remove(w)
	err := fmt.Errorf("%w: %s", ErrKillTimeout, w.LogicalID)
	w.finish(err)
	return err
}

// wait blocks until w finishes or its handle ends, ctx ends or the
// force-kill timeout elapses. Reports whether w finished.
func (s *Supervisor) wait(ctx context.Context, w *Worker, h *worker.Handle) bool {
	expired := make(chan struct{})
	timer := s.clock.AfterFunc(s.forceKill, func() { close(expired) })
	defer timer.Stop()

	select {
	case <-w.Done():
		return true
	case <-h.Done():
		s.settle(w, h)
		return true
	case <-expired:
	case <-ctx.Done():
	}
	select {
	case <-w.Done():
		return true
	case <-h.Done():
		s.settle(w, h)
		return true
	default:
		return false
	}
}

// settle finishes a closing worker whose handle is terminal. The handle's
// final event may still be queued behind a subscriber that is closing
// the worker from inside a lifecycle callback.
func (s *Supervisor) settle(w *Worker, h *worker.Handle) {
	s.remove(w)
	var err error
	if h.State() == worker.StateCrashed {
		err = h.Err()
	}
	w.finish(err)
}

// spawn builds and starts a new incarnation. The returned handle is nil
// when the factory failed.
func (s *Supervisor) spawn(ctx context.Context, w *Worker) (*worker.Handle, error) {
	rt, err := s.factory(w.LogicalID, w.Config)
	if err != nil {
		return nil, fmt.Errorf("build runtime for %s: %w", w.LogicalID, err)
	}

	loadTimeout := w.Config.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = s.loadTime
	}
	sendRate, sendBurst := w.Config.SendRate, w.Config.SendBurst
	if sendRate <= 0 {
		sendRate, sendBurst = s.sendRate, s.sendBurst
	}

	h := worker.New(worker.Options{
		LogicalID:   w.LogicalID,
		ParentID:    w.Config.ParentID,
		Title:       w.Config.Title,
		Bounds:      s.restoreBounds(w),
		LoadTimeout: loadTimeout,
		SendRate:    sendRate,
		SendBurst:   sendBurst,
		Runtime:     rt,
		Bus:         s.bus,
		Gateway:     s.gateway,
		Clock:       s.clock,
		Logger:      s.logger,
		Observer: func(ev worker.Event) {
			s.observe(w, ev)
		},
	})

	w.mu.Lock()
	w.handle = h
	w.mu.Unlock()

	return h, h.Start(ctx)
}

func (s *Supervisor) restoreBounds(w *Worker) types.Bounds {
	if s.store != nil {
		if b, ok := s.store.Get(string(w.LogicalID)); ok {
			return b
		}
	}
	if h := w.Handle(); h != nil {
		return h.Bounds()
	}
	if w.Config.Bounds != nil {
		return *w.Config.Bounds
	}
	return types.Bounds{}
}

// observe runs on the goroutine that caused the handle event
func (s *Supervisor) observe(w *Worker, ev worker.Event) {
	if h := w.Handle(); h == nil || h.InstanceID() != ev.InstanceID {
		return
	}

	switch ev.Type {
	case worker.EventBounds:
		if s.store != nil && !ev.Minimized && ev.State != worker.StateSuspended {
			s.store.Observe(string(w.LogicalID), ev.Bounds)
		}
		return

	case worker.EventBeforeClose:
		if s.store != nil {
			if !ev.Minimized {
				s.store.Put(string(w.LogicalID), ev.Bounds)
			}
			if err := s.store.Flush(); err != nil {
				s.logger.Warn("Window state flush failed",
					zap.String("logical_id", string(w.LogicalID)),
					zap.Error(err),
				)
			}
		}
		s.publish(LifecycleEvent{
			Type:       EventBeforeClose,
			LogicalID:  w.LogicalID,
			InstanceID: ev.InstanceID,
			State:      ev.State,
			At:         ev.At,
		})
		return
	}

	s.metrics.RecordTransition(string(ev.State))
	s.publish(LifecycleEvent{
		Type:       EventType(ev.State),
		LogicalID:  w.LogicalID,
		InstanceID: ev.InstanceID,
		State:      ev.State,
		Reason:     ev.Reason,
		Err:        ev.Err,
		At:         ev.At,
	})

	switch ev.State {
	case worker.StateClosed:
		s.remove(w)
		w.finish(nil)
	case worker.StateCrashed:
		var upSince time.Time
		if h := w.Handle(); h != nil {
			upSince = h.ReadySince()
		}
		s.crashed(w, ev, upSince)
	}
}

// crashed applies the restart policy. upSince is when the crashed
// incarnation became ready, zero if it never did.
func (s *Supervisor) crashed(w *Worker, ev worker.Event, upSince time.Time) {
	w.mu.RLock()
	closing := w.closing
	w.mu.RUnlock()

	if closing || ev.Previous == worker.StateClosing || !w.Config.Essential {
		s.remove(w)
		w.finish(ev.Err)
		return
	}

	delay, ok := w.backoff.Failure(s.clock.Now(), upSince)
	if !ok {
		s.giveUp(w, ev.Err)
		return
	}

	attempt := w.backoff.Failures()
	s.logger.Warn("Restarting essential worker",
		zap.String("logical_id", string(w.LogicalID)),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.String("reason", ev.Reason),
	)
	s.publish(LifecycleEvent{
		Type:       EventRestarting,
		LogicalID:  w.LogicalID,
		InstanceID: ev.InstanceID,
		State:      worker.StateCrashed,
		Reason:     ev.Reason,
		Err:        ev.Err,
		Attempt:    attempt,
		Delay:      delay,
		At:         s.clock.Now(),
	})

	w.mu.Lock()
	if !w.closing && !w.finished {
		w.restartTimer = s.clock.AfterFunc(delay, func() { s.restart(w) })
	}
	w.mu.Unlock()
}

func (s *Supervisor) restart(w *Worker) {
	w.mu.Lock()
	if w.closing || w.finished {
		w.mu.Unlock()
		return
	}
	w.restartTimer = nil
	w.restarts++
	w.mu.Unlock()

	s.metrics.IncRestarts()
	h, err := s.spawn(context.Background(), w)
	if err == nil {
		return
	}
	if h == nil {
		// Factory failure counts as another crash
		s.crashed(w, worker.Event{
			Type:      worker.EventState,
			LogicalID: w.LogicalID,
			State:     worker.StateCrashed,
			Reason:    worker.ReasonStartFailed,
			Err:       err,
			At:        s.clock.Now(),
		}, time.Time{})
	}
}

func (s *Supervisor) giveUp(w *Worker, cause error) {
	err := fmt.Errorf("%w: %s", ErrWorkerUnrecoverable, w.LogicalID)
	if cause != nil {
		err = fmt.Errorf("%w: %s: last crash: %v", ErrWorkerUnrecoverable, w.LogicalID, cause)
	}

	s.mu.Lock()
	s.unrecoverable[w.LogicalID] = err
	s.mu.Unlock()
	s.metrics.IncUnrecoverable()

	s.logger.Error("Essential worker is unrecoverable",
		zap.String("logical_id", string(w.LogicalID)),
		zap.Int("attempts", w.backoff.Failures()),
		zap.Error(cause),
	)
	s.remove(w)
	w.finish(err)

	s.publish(LifecycleEvent{
		Type:      EventUnrecoverable,
		LogicalID: w.LogicalID,
		State:     worker.StateCrashed,
		Err:       err,
		Attempt:   w.backoff.Failures(),
		At:        s.clock.Now(),
	})
}

func (s *Supervisor) remove(w *Worker) {
	s.mu.Lock()
	if current, ok := s.workers[w.LogicalID]; ok && current == w {
		delete(s.workers, w.LogicalID)
	}
	live := len(s.workers)
	s.mu.Unlock()
	s.metrics.SetWorkersLive(live)
}

func (s *Supervisor) publish(ev LifecycleEvent) {
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	s.subMu.RLock()
	subs := append([]subscriber(nil), s.subscribers...)
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}
