package wire

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// ErrUnknownFrame is returned for frame kinds a worker may not send
var ErrUnknownFrame = errors.New("unknown frame kind")

// Dispatcher applies worker frames to a link. Worker invokes run
// concurrently; their responses go out through send.
type Dispatcher struct {
	link   worker.Link
	send   func(Frame) error
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for one worker connection
func NewDispatcher(link worker.Link, send func(Frame) error) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		link:   link,
		send:   send,
		logger: link.Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handle applies one frame
func (d *Dispatcher) Handle(f Frame) error {
	switch f.Kind {
	case KindSend:
		if err := d.link.Send(f.Channel, f.Payload); err != nil {
			d.logger.Debug("Worker send rejected", zap.String("channel", f.Channel), zap.Error(err))
			if f.ID != "" {
				return d.send(Frame{Kind: KindResponse, ID: f.ID, Error: err.Error()})
			}
		}
		return nil

	case KindRequest:
		if f.ID == "" {
			return fmt.Errorf("request on %q without id", f.Channel)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			out, err := d.link.Invoke(d.ctx, f.Channel, f.Payload)
			reply := Frame{Kind: KindResponse, ID: f.ID, Channel: f.Channel, Payload: out}
			if err != nil {
				reply.Error = err.Error()
			}
			if err := d.send(reply); err != nil {
				d.logger.Debug("Dropping invoke response", zap.String("id", f.ID), zap.Error(err))
			}
		}()
		return nil

	case KindResponse:
		d.link.Respond(f.ID, f.Payload, f.Error)
		return nil

	case KindReady:
		d.link.Ready()
		return nil

	case KindClose:
		d.link.Close()
		return nil

	case KindBounds:
		b, ok := types.BoundsFromPayload(f.Payload)
		if !ok {
			return fmt.Errorf("malformed bounds frame")
		}
		d.link.SetBounds(b)
		return nil

	case KindVisibility:
		if minimized, _ := f.Payload["minimized"].(bool); minimized {
			d.link.Minimize()
			return nil
		}
		visible, _ := f.Payload["visible"].(bool)
		d.link.SetVisible(visible)
		return nil

	case KindLog:
		d.log(f.Payload)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Kind)
}

// Close cancels in-flight invokes and waits for them
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) log(p types.Payload) {
	level, _ := p["level"].(string)
	message, _ := p["message"].(string)
	fields := []zap.Field{zap.String("source", "worker")}

	switch level {
	case "error":
		d.logger.Error(message, fields...)
	case "warn":
		d.logger.Warn(message, fields...)
	case "debug":
		d.logger.Debug(message, fields...)
	default:
		d.logger.Info(message, fields...)
	}
}
