package remote

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Hub tracks remote worker slots awaiting or holding a connection
type Hub struct {
	mu    sync.Mutex
	slots map[types.ContextID]*Runtime
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{slots: make(map[types.ContextID]*Runtime)}
}

// New creates a runtime for id. It joins the hub when started.
func (h *Hub) New(id types.ContextID) *Runtime {
	return &Runtime{hub: h, id: id, done: make(chan struct{})}
}

// Accept hands a worker connection to the slot registered under id. The
// returned channel closes when the worker finishes. On error the caller
// still owns conn.
func (h *Hub) Accept(id types.ContextID, conn *websocket.Conn) (<-chan struct{}, error) {
	h.mu.Lock()
	r, ok := h.slots[id]
	h.mu.Unlock()
	if !ok {
		return nil, ErrUnknownWorker
	}
	if err := r.accept(conn); err != nil {
		return nil, err
	}
	return r.done, nil
}

// Expecting reports whether a slot under id is waiting for a connection
func (h *Hub) Expecting(id types.ContextID) bool {
	h.mu.Lock()
	r, ok := h.slots[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn == nil && !r.killed
}

// Waiting lists slots without a connection
func (h *Hub) Waiting() []types.ContextID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []types.ContextID
	for id, r := range h.slots {
		r.mu.Lock()
		if r.conn == nil {
			ids = append(ids, id)
		}
		r.mu.Unlock()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Hub) register(r *Runtime) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[r.id] = r
}

// unregister removes r unless a newer incarnation took its place
func (h *Hub) unregister(r *Runtime) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slots[r.id] == r {
		delete(h.slots, r.id)
	}
}
