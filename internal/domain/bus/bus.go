package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// DefaultRequestTimeout applies when neither the bus nor the call sets one
const DefaultRequestTimeout = 30 * time.Second

// Listener observes worker->host sends on one channel
type Listener func(from types.ContextID, payload types.Payload)

// Option configures a Bus
type Option func(*Bus)

// WithClock injects the clock used for deadlines
func WithClock(c clock.Clock) Option {
	return func(b *Bus) {
		b.clock = c
	}
}

// WithRequestTimeout sets the default request deadline
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMetrics adds metrics tracking to the bus
func WithMetrics(m *monitoring.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// AttachOption configures an attached endpoint
type AttachOption func(*attachment)

// WithRateLimit caps how fast the endpoint may send or request
func WithRateLimit(r rate.Limit, burst int) AttachOption {
	return func(a *attachment) {
		if r > 0 {
			a.limiter = rate.NewLimiter(r, burst)
		}
	}
}

type attachment struct {
	box     *mailbox
	limiter *rate.Limiter
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Bus routes messages between the host and attached worker endpoints
type Bus struct {
	gateway *gateway.Gateway
	logger  *zap.Logger
	clock   clock.Clock
	metrics *monitoring.Metrics
	timeout time.Duration

	mu         sync.Mutex
	endpoints  map[types.ContextID]*attachment // Protected by mu
	pending    map[id.CorrelationID]*Call      // Protected by mu
	listeners  map[string][]listenerEntry      // Protected by mu
	listenerID uint64                          // Protected by mu
	closed     bool                            // Protected by mu
	host       *mailbox
}

// New creates a bus bound to a gateway
func New(gw *gateway.Gateway, logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		gateway:   gw,
		logger:    logger,
		clock:     clock.Real(),
		timeout:   DefaultRequestTimeout,
		endpoints: make(map[types.ContextID]*attachment),
		pending:   make(map[id.CorrelationID]*Call),
		listeners: make(map[string][]listenerEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.host = newMailbox(hostEndpoint{b}, logger)
	return b
}

// Attach registers a worker endpoint. Re-attaching an id replaces the
// previous endpoint after detaching it.
func (b *Bus) Attach(ep Endpoint, opts ...AttachOption) error {
	if ep.ID().IsHost() {
		return fmt.Errorf("cannot attach the host context")
	}

	a := &attachment{}
	for _, opt := range opts {
		opt(a)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	_, exists := b.endpoints[ep.ID()]
	b.mu.Unlock()

	if exists {
		b.Detach(ep.ID())
	}

	a.box = newMailbox(ep, b.logger)

	b.mu.Lock()
	b.endpoints[ep.ID()] = a
	b.mu.Unlock()

	b.logger.Debug("Endpoint attached", zap.String("context", ep.ID().String()))
	return nil
}

// Detach removes an endpoint. Every pending request addressed to it
// resolves with ErrWorkerGone.
func (b *Bus) Detach(ctxID types.ContextID) {
	b.mu.Lock()
	a, ok := b.endpoints[ctxID]
	if ok {
		delete(b.endpoints, ctxID)
	}
	var orphaned []*Call
	for corr, call := range b.pending {
		if call.To == ctxID {
			delete(b.pending, corr)
			orphaned = append(orphaned, call)
		}
	}
	b.mu.Unlock()

	if ok {
		a.box.close()
	}
	for _, call := range orphaned {
		b.finish(call, nil, fmt.Errorf("%w: %s", ErrWorkerGone, ctxID))
	}
	if ok || len(orphaned) > 0 {
		b.logger.Debug("Endpoint detached",
			zap.String("context", ctxID.String()),
			zap.Int("orphaned_requests", len(orphaned)),
		)
	}
}

// Attached reports whether a context currently has an endpoint
func (b *Bus) Attached(ctxID types.ContextID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.endpoints[ctxID]
	return ok
}

// On registers a host listener for worker->host sends on channel.
// Listeners run in registration order on the host mailbox goroutine.
func (b *Bus) On(channel string, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.listenerID++
	lid := b.listenerID
	b.listeners[channel] = append(b.listeners[channel], listenerEntry{id: lid, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.listeners[channel]
		for i, e := range entries {
			if e.id == lid {
				b.listeners[channel] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Send is fire-and-forget. Host sends fan out to every attached worker
// allowed to receive on the channel; worker sends go to host listeners.
func (b *Bus) Send(from types.ContextID, channel string, payload types.Payload) error {
	if err := b.admit(from, channel, payload); err != nil {
		return err
	}

	msg := &types.Message{
		Kind:    types.KindSend,
		From:    from,
		Channel: channel,
		SentAt:  b.clock.Now(),
	}

	if !from.IsHost() {
		msg.To = types.HostContext
		msg.Payload = payload.Clone()
		b.host.push(msg)
		b.metrics.RecordBusMessage(string(types.KindSend), "delivered")
		return nil
	}

	b.mu.Lock()
	targets := make([]*attachment, 0, len(b.endpoints))
	var ids []types.ContextID
	for ctxID, a := range b.endpoints {
		if b.gateway.Authorize(ctxID, channel, gateway.OpReceive) {
			targets = append(targets, a)
			ids = append(ids, ctxID)
		}
	}
	b.mu.Unlock()

	for i, a := range targets {
		out := *msg
		out.To = ids[i]
		out.Payload = payload.Clone()
		a.box.push(&out)
	}
	b.metrics.RecordBusMessage(string(types.KindSend), "delivered")
	return nil
}

// SendTo delivers a host send to a single worker
func (b *Bus) SendTo(from, to types.ContextID, channel string, payload types.Payload) error {
	if !from.IsHost() {
		b.metrics.RecordBusMessage(string(types.KindSend), "denied")
		return fmt.Errorf("%w: %s may not address %s", gateway.ErrChannelDenied, from, to)
	}
	if err := b.admit(from, channel, payload); err != nil {
		return err
	}
	if err := b.gateway.Check(to, channel, gateway.OpReceive); err != nil {
		b.metrics.RecordBusMessage(string(types.KindSend), "denied")
		return err
	}

	b.mu.Lock()
	a, ok := b.endpoints[to]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkerGone, to)
	}

	a.box.push(&types.Message{
		Kind:    types.KindSend,
		From:    from,
		To:      to,
		Channel: channel,
		Payload: payload.Clone(),
		SentAt:  b.clock.Now(),
	})
	b.metrics.RecordBusMessage(string(types.KindSend), "delivered")
	return nil
}

// RequestOption configures one request
type RequestOption func(*requestOptions)

type requestOptions struct {
	target  types.ContextID
	timeout time.Duration
}

// WithTarget addresses a host request to a worker
func WithTarget(target types.ContextID) RequestOption {
	return func(o *requestOptions) {
		o.target = target
	}
}

// WithTimeout overrides the default deadline for one request
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// Request creates a pending request and returns without waiting. If ctx
// ends before resolution the request is cancelled.
func (b *Bus) Request(ctx context.Context, from types.ContextID, channel string, payload types.Payload, opts ...RequestOption) (*Call, error) {
	o := requestOptions{timeout: b.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = b.timeout
	}

	if err := b.admit(from, channel, payload); err != nil {
		return nil, err
	}

	var (
		to      types.ContextID
		handler gateway.Handler
		box     *mailbox
	)
	if from.IsHost() {
		if o.target == "" || o.target.IsHost() {
			return nil, ErrNoTarget
		}
		to = o.target
		if err := b.gateway.Check(to, channel, gateway.OpReceive); err != nil {
			b.metrics.RecordBusMessage(string(types.KindRequest), "denied")
			return nil, err
		}
	} else {
		to = types.HostContext
		entry, _ := b.gateway.Lookup(channel)
		handler = entry.Handler
	}

	now := b.clock.Now()
	call := &Call{
		ID:        id.NewCorrelationID(),
		Channel:   channel,
		From:      from,
		To:        to,
		CreatedAt: now,
		Deadline:  now.Add(o.timeout),
		bus:       b,
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if !to.IsHost() {
		a, ok := b.endpoints[to]
		if !ok {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrWorkerGone, to)
		}
		box = a.box
	}
	b.pending[call.ID] = call
	corr := call.ID
	call.timer = b.clock.AfterFunc(o.timeout, func() {
		b.resolve(corr, nil, fmt.Errorf("%w after %s", ErrTimeout, o.timeout), false)
	})
	if ctx != nil && ctx.Done() != nil {
		call.stopCtx = context.AfterFunc(ctx, call.Cancel)
	}
	b.mu.Unlock()

	b.metrics.PendingRequestsInc()

	if to.IsHost() {
		if handler == nil {
			b.resolve(corr, nil, fmt.Errorf("%w: %q", ErrNoHandler, channel), false)
			return call, nil
		}
		hctx, cancel := context.WithCancel(context.Background())
		call.setHandlerCancel(cancel)
		in := payload.Clone()
		go func() {
			out, err := handler(hctx, from, in)
			b.resolve(corr, out, err, false)
		}()
		return call, nil
	}

	box.push(&types.Message{
		Kind:          types.KindRequest,
		From:          from,
		To:            to,
		Channel:       channel,
		CorrelationID: corr.String(),
		Payload:       payload.Clone(),
		SentAt:        now,
	})
	b.metrics.RecordBusMessage(string(types.KindRequest), "delivered")
	return call, nil
}

// Invoke sends a request and waits for it. Cancelling ctx cancels the
// request.
func (b *Bus) Invoke(ctx context.Context, from types.ContextID, channel string, payload types.Payload, opts ...RequestOption) (types.Payload, error) {
	call, err := b.Request(ctx, from, channel, payload, opts...)
	if err != nil {
		return nil, err
	}
	out, err := call.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		call.Cancel()
	}
	return out, err
}

// Respond resolves a host request from the worker it was addressed to.
// Unknown, already resolved or misaddressed responses are dropped.
func (b *Bus) Respond(from types.ContextID, corr id.CorrelationID, payload types.Payload, errMsg string) bool {
	b.mu.Lock()
	call, ok := b.pending[corr]
	if ok && call.To != from {
		b.mu.Unlock()
		b.logger.Warn("Dropping response from wrong context",
			zap.String("from", from.String()),
			zap.String("expected", call.To.String()),
			zap.String("correlation_id", corr.String()),
		)
		b.metrics.RecordBusMessage(string(types.KindResponse), "dropped")
		return false
	}
	b.mu.Unlock()

	var err error
	if errMsg != "" {
		err = &RemoteError{Message: errMsg}
	}
	return b.resolve(corr, payload, err, false)
}

// Pending returns the number of unresolved requests
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close detaches every endpoint and fails all pending requests
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	ids := make([]types.ContextID, 0, len(b.endpoints))
	for ctxID := range b.endpoints {
		ids = append(ids, ctxID)
	}
	b.mu.Unlock()

	for _, ctxID := range ids {
		b.Detach(ctxID)
	}

	b.mu.Lock()
	rest := make([]*Call, 0, len(b.pending))
	for corr, call := range b.pending {
		delete(b.pending, corr)
		rest = append(rest, call)
	}
	b.mu.Unlock()

	for _, call := range rest {
		b.finish(call, nil, ErrClosed)
	}
	b.host.close()
}

// admit runs the synchronous checks shared by every operation
func (b *Bus) admit(from types.ContextID, channel string, payload types.Payload) error {
	if err := b.gateway.Check(from, channel, gateway.OpSend); err != nil {
		b.metrics.RecordBusMessage("admit", "denied")
		return err
	}
	if err := b.gateway.Validate(channel, payload); err != nil {
		b.metrics.RecordBusMessage("admit", "invalid")
		return err
	}
	if from.IsHost() {
		return nil
	}

	b.mu.Lock()
	a, ok := b.endpoints[from]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s is not attached", ErrWorkerGone, from)
	}
	if a.limiter != nil && !a.limiter.Allow() {
		b.metrics.RecordBusMessage("admit", "rate_limited")
		return fmt.Errorf("%w: %s", ErrRateLimited, from)
	}
	return nil
}

// resolve settles a pending request. Only the first caller for a given
// correlation id wins; quiet suppresses the late-arrival log.
func (b *Bus) resolve(corr id.CorrelationID, payload types.Payload, err error, quiet bool) bool {
	b.mu.Lock()
	call, ok := b.pending[corr]
	if ok {
		delete(b.pending, corr)
	}
	b.mu.Unlock()

	if !ok {
		if !quiet {
			b.logger.Debug("Dropping late resolution",
				zap.String("correlation_id", corr.String()),
				zap.NamedError("resolution_error", err),
			)
			b.metrics.RecordBusMessage(string(types.KindResponse), "dropped")
		}
		return false
	}
	b.finish(call, payload, err)
	return true
}

func (b *Bus) finish(call *Call, payload types.Payload, err error) {
	call.complete(payload, err)
	b.metrics.PendingRequestsDec()
	b.metrics.RecordRequest(outcome(err), b.clock.Now().Sub(call.CreatedAt))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrWorkerGone):
		return "worker_gone"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

// hostEndpoint dispatches worker sends to host listeners
type hostEndpoint struct {
	bus *Bus
}

func (h hostEndpoint) ID() types.ContextID { return types.HostContext }

func (h hostEndpoint) Deliver(msg *types.Message) error {
	h.bus.mu.Lock()
	entries := append([]listenerEntry(nil), h.bus.listeners[msg.Channel]...)
	h.bus.mu.Unlock()

	if len(entries) == 0 {
		h.bus.logger.Debug("No host listener for channel",
			zap.String("channel", msg.Channel),
			zap.String("from", msg.From.String()),
		)
		return nil
	}
	for _, e := range entries {
		e.fn(msg.From, msg.Payload)
	}
	return nil
}
