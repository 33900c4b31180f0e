package worker

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// ControlKind is a host-to-runtime hint
type ControlKind string

const (
	ControlVisibility ControlKind = "visibility"
	ControlBounds     ControlKind = "bounds"
	ControlClose      ControlKind = "close"
)

// Control is a hint the handle forwards to its runtime
type Control struct {
	Kind    ControlKind
	Visible bool
	Bounds  types.Bounds
}

// Runtime executes worker content in isolation. Start must return
// promptly; the runtime reports readiness and exit through the Link.
type Runtime interface {
	Start(ctx context.Context, link Link) error
	Deliver(msg *types.Message) error
	Control(c Control) error
	Kill() error
}
