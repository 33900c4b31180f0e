package worker

// State is a worker lifecycle state
type State string

const (
	StateCreated   State = "created"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateActive    State = "active"
	StateSuspended State = "suspended"
	StateClosing   State = "closing"
	StateClosed    State = "closed"
	StateCrashed   State = "crashed"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateClosed || s == StateCrashed
}

// Up reports whether the worker has loaded and is not shutting down
func (s State) Up() bool {
	switch s {
	case StateReady, StateActive, StateSuspended:
		return true
	}
	return false
}

func (s State) in(states ...State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}

// Crash reasons
const (
	ReasonLoadTimeout = "load_timeout"
	ReasonStartFailed = "start_failed"
	ReasonExited      = "exited"
	ReasonKilled      = "killed"
)

// EventType distinguishes handle events
type EventType string

const (
	EventState       EventType = "state"
	EventBounds      EventType = "bounds"
	EventBeforeClose EventType = "before_close"
)
