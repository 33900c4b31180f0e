package bus

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Call is a pending request. It lives from Request until its single
// resolution.
type Call struct {
	ID        id.CorrelationID
	Channel   string
	From      types.ContextID
	To        types.ContextID
	CreatedAt time.Time
	Deadline  time.Time

	bus     *Bus
	done    chan struct{}
	result  types.Payload
	err     error
	timer   clock.Timer
	stopCtx func() bool

	cancelMu      sync.Mutex
	cancelHandler context.CancelFunc
}

// Done is closed once the call has resolved
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the resolution. Only meaningful after Done is closed.
func (c *Call) Result() (types.Payload, error) {
	select {
	case <-c.done:
		return c.result, c.err
	default:
		return nil, nil
	}
}

// Wait blocks until resolution or ctx ends. Ending ctx does not cancel
// the call; use Cancel or Bus.Invoke for that.
func (c *Call) Wait(ctx context.Context) (types.Payload, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel resolves the call with ErrCancelled. No-op once resolved.
func (c *Call) Cancel() {
	c.bus.resolve(c.ID, nil, ErrCancelled, true)
}

func (c *Call) setHandlerCancel(cancel context.CancelFunc) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	select {
	case <-c.done:
		cancel()
	default:
		c.cancelHandler = cancel
	}
}

// complete is called exactly once, by whoever removed the call from the
// pending table
func (c *Call) complete(payload types.Payload, err error) {
	c.result = payload
	c.err = err
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.stopCtx != nil {
		c.stopCtx()
	}

	c.cancelMu.Lock()
	close(c.done)
	cancel := c.cancelHandler
	c.cancelMu.Unlock()

	if cancel != nil {
		cancel()
	}
}
