// Package linktest provides a recording worker.Link for runtime tests.
package linktest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Sent is one worker send observed by the link
type Sent struct {
	Channel string
	Payload types.Payload
}

// Response is one worker response observed by the link
type Response struct {
	ID      string
	Payload types.Payload
	Error   string
}

// Link records everything a runtime reports. InvokeFunc answers
// invokes; the default echoes the payload.
type Link struct {
	Name       types.ContextID
	WindowName string
	Geometry   types.Bounds
	Channels   []gateway.Channel
	InvokeFunc func(ctx context.Context, channel string, payload types.Payload) (types.Payload, error)
	SendErr    error
	Log        *zap.Logger

	mu        sync.Mutex
	sent      []Sent
	responses []Response
	bounds    []types.Bounds
	visible   []bool
	minimized int
	closes    int
	ready     chan struct{}
	readyOnce sync.Once
	exited    chan error
	exitOnce  sync.Once
	events    chan struct{}
}

// New creates a link for id
func New(id types.ContextID) *Link {
	return &Link{
		Name:   id,
		Log:    zap.NewNop(),
		ready:  make(chan struct{}),
		exited: make(chan error, 1),
		events: make(chan struct{}, 1024),
	}
}

func (l *Link) ID() types.ContextID        { return l.Name }
func (l *Link) Title() string              { return l.WindowName }
func (l *Link) Bounds() types.Bounds       { return l.Geometry }
func (l *Link) Surface() []gateway.Channel { return l.Channels }
func (l *Link) Logger() *zap.Logger        { return l.Log }

func (l *Link) Send(channel string, payload types.Payload) error {
	if l.SendErr != nil {
		return l.SendErr
	}
	l.mu.Lock()
	l.sent = append(l.sent, Sent{Channel: channel, Payload: payload})
	l.mu.Unlock()
	l.notify()
	return nil
}

func (l *Link) Invoke(ctx context.Context, channel string, payload types.Payload) (types.Payload, error) {
	if l.InvokeFunc != nil {
		return l.InvokeFunc(ctx, channel, payload)
	}
	return payload, nil
}

func (l *Link) Respond(correlationID string, payload types.Payload, errMsg string) {
	l.mu.Lock()
	l.responses = append(l.responses, Response{ID: correlationID, Payload: payload, Error: errMsg})
	l.mu.Unlock()
	l.notify()
}

func (l *Link) Ready() {
	l.readyOnce.Do(func() { close(l.ready) })
}

func (l *Link) Close() {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	l.notify()
}

func (l *Link) SetBounds(b types.Bounds) {
	l.mu.Lock()
	l.bounds = append(l.bounds, b)
	l.mu.Unlock()
	l.notify()
}

func (l *Link) SetVisible(visible bool) {
	l.mu.Lock()
	l.visible = append(l.visible, visible)
	l.mu.Unlock()
	l.notify()
}

func (l *Link) Minimize() {
	l.mu.Lock()
	l.minimized++
	l.mu.Unlock()
	l.notify()
}

func (l *Link) Exited(err error) {
	l.exitOnce.Do(func() { l.exited <- err })
}

// WaitReady blocks until Ready or the timeout
func (l *Link) WaitReady(timeout time.Duration) bool {
	select {
	case <-l.ready:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitExit blocks until Exited or the timeout
func (l *Link) WaitExit(timeout time.Duration) (error, bool) {
	select {
	case err := <-l.exited:
		return err, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Eventually polls cond after every recorded event until it holds
func (l *Link) Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.After(timeout)
	for {
		if cond() {
			return true
		}
		select {
		case <-l.events:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return cond()
		}
	}
}

// SentMessages returns the recorded sends
func (l *Link) SentMessages() []Sent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sent(nil), l.sent...)
}

// Responses returns the recorded responses
func (l *Link) Responses() []Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Response(nil), l.responses...)
}

// BoundsUpdates returns the recorded bounds reports
func (l *Link) BoundsUpdates() []types.Bounds {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Bounds(nil), l.bounds...)
}

// Visibility returns the recorded visibility reports
func (l *Link) Visibility() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.visible...)
}

// Minimizes counts Minimize calls
func (l *Link) Minimizes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minimized
}

// Closes counts Close calls
func (l *Link) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func (l *Link) notify() {
	select {
	case l.events <- struct{}{}:
	default:
	}
}
