package supervisor

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// EventType names a lifecycle event
type EventType string

const (
	EventCreated       EventType = "created"
	EventLoading       EventType = "loading"
	EventReady         EventType = "ready"
	EventActive        EventType = "active"
	EventSuspended     EventType = "suspended"
	EventBeforeClose   EventType = "before_close"
	EventClosing       EventType = "closing"
	EventClosed        EventType = "closed"
	EventCrashed       EventType = "crashed"
	EventRestarting    EventType = "restarting"
	EventUnrecoverable EventType = "unrecoverable"
)

// LifecycleEvent is one worker lifecycle notification
type LifecycleEvent struct {
	Type       EventType       `json:"type"`
	LogicalID  types.ContextID `json:"logical_id"`
	InstanceID id.InstanceID   `json:"instance_id,omitempty"`
	State      worker.State    `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Err        error           `json:"-"`
	Attempt    int             `json:"attempt,omitempty"`
	Delay      time.Duration   `json:"delay,omitempty"`
	At         time.Time       `json:"at"`
}

// LifecycleFunc receives lifecycle events
type LifecycleFunc func(LifecycleEvent)

type subscriber struct {
	id uint64
	fn LifecycleFunc
}
