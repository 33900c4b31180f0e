package types

import (
	"errors"
	"time"
)

// ContextID identifies an execution context. Workers use their logical id.
type ContextID string

// HostContext is the privileged supervising context.
const HostContext ContextID = "host"

// IsHost reports whether the context is the host.
func (c ContextID) IsHost() bool {
	return c == HostContext
}

func (c ContextID) String() string {
	return string(c)
}

// Payload is a message body
type Payload map[string]interface{}

// Clone returns a shallow copy so recipients cannot mutate the sender's map
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Direction declares which side of a channel may originate messages
type Direction string

const (
	HostToWorker Direction = "host->worker"
	WorkerToHost Direction = "worker->host"
	Invoke       Direction = "invoke" // request/response, either side may call
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	switch d {
	case HostToWorker, WorkerToHost, Invoke:
		return true
	}
	return false
}

// Kind distinguishes bus deliveries
type Kind string

const (
	KindSend     Kind = "send"
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// Message is one delivery on the bus
type Message struct {
	Kind          Kind      `json:"kind"`
	From          ContextID `json:"from"`
	To            ContextID `json:"to,omitempty"`
	Channel       string    `json:"channel"`
	CorrelationID string    `json:"id,omitempty"`
	Payload       Payload   `json:"payload,omitempty"`
	Error         string    `json:"error,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

// ErrDenied is the only capability failure a worker ever sees
var ErrDenied = errors.New("denied")

// PublicError strips host-side detail from errors crossing into a worker.
// Capability and schema failures collapse to ErrDenied so channel topology
// does not leak.
func PublicError(err error, internal ...error) error {
	if err == nil {
		return nil
	}
	for _, target := range internal {
		if errors.Is(err, target) {
			return ErrDenied
		}
	}
	return err
}
