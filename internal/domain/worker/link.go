package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Link is the runtime's only path back to the host. Capability failures
// come back as types.ErrDenied.
type Link interface {
	ID() types.ContextID
	Title() string
	Bounds() types.Bounds
	Surface() []gateway.Channel
	Send(channel string, payload types.Payload) error
	Invoke(ctx context.Context, channel string, payload types.Payload) (types.Payload, error)
	Respond(correlationID string, payload types.Payload, errMsg string)
	Ready()
	Close()
	SetBounds(b types.Bounds)
	SetVisible(visible bool)
	Minimize()
	Exited(err error)
	Logger() *zap.Logger
}

type link struct {
	h *Handle
}

func (l link) ID() types.ContextID  { return l.h.id }
func (l link) Title() string        { return l.h.title }
func (l link) Bounds() types.Bounds { return l.h.Bounds() }
func (l link) Logger() *zap.Logger  { return l.h.logger }

func (l link) Surface() []gateway.Channel {
	return l.h.gateway.Surface(l.h.id)
}

func (l link) Send(channel string, payload types.Payload) error {
	return public(l.h.bus.Send(l.h.id, channel, payload))
}

func (l link) Invoke(ctx context.Context, channel string, payload types.Payload) (types.Payload, error) {
	out, err := l.h.bus.Invoke(ctx, l.h.id, channel, payload)
	return out, public(err)
}

func (l link) Respond(correlationID string, payload types.Payload, errMsg string) {
	l.h.bus.Respond(l.h.id, id.CorrelationID(correlationID), payload, errMsg)
}

func (l link) Ready()                   { l.h.markReady() }
func (l link) Close()                   { _ = l.h.RequestClose() }
func (l link) SetBounds(b types.Bounds) { l.h.UpdateBounds(b) }
func (l link) Exited(err error)         { l.h.exited(err) }

func (l link) SetVisible(visible bool) {
	if visible {
		_ = l.h.show(false)
		return
	}
	_ = l.h.hide(false, false)
}

func (l link) Minimize() {
	_ = l.h.hide(true, false)
}

func public(err error) error {
	return types.PublicError(err, gateway.ErrChannelDenied, gateway.ErrSchemaViolation)
}
