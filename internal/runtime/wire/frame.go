package wire

import (
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Kind names a frame
type Kind string

const (
	KindInit       Kind = "init"
	KindSend       Kind = "send"
	KindRequest    Kind = "request"
	KindResponse   Kind = "response"
	KindReady      Kind = "ready"
	KindClose      Kind = "close"
	KindBounds     Kind = "bounds"
	KindVisibility Kind = "visibility"
	KindLog        Kind = "log"
)

// Frame is one unit on a worker transport
type Frame struct {
	Kind    Kind          `json:"kind"`
	ID      string        `json:"id,omitempty"`
	Channel string        `json:"channel,omitempty"`
	Payload types.Payload `json:"payload,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// FromMessage converts a bus delivery into a frame for the worker
func FromMessage(msg *types.Message) Frame {
	f := Frame{
		Kind:    KindSend,
		Channel: msg.Channel,
		Payload: msg.Payload,
	}
	if msg.Kind == types.KindRequest {
		f.Kind = KindRequest
		f.ID = msg.CorrelationID
	}
	return f
}

// FromControl converts a handle control into a frame for the worker
func FromControl(c worker.Control) Frame {
	switch c.Kind {
	case worker.ControlBounds:
		return Frame{Kind: KindBounds, Payload: c.Bounds.Payload()}
	case worker.ControlVisibility:
		return Frame{Kind: KindVisibility, Payload: types.Payload{"visible": c.Visible}}
	default:
		return Frame{Kind: KindClose}
	}
}

// Init is the first frame the host sends. It tells the worker who it is
// and which channels it may use.
func Init(link worker.Link) Frame {
	surface := link.Surface()
	channels := make([]interface{}, 0, len(surface))
	for _, ch := range surface {
		channels = append(channels, map[string]interface{}{
			"id":        ch.ID,
			"direction": string(ch.Direction),
		})
	}
	return Frame{
		Kind: KindInit,
		ID:   link.ID().String(),
		Payload: types.Payload{
			"title":    link.Title(),
			"bounds":   map[string]interface{}(link.Bounds().Payload()),
			"channels": channels,
		},
	}
}
