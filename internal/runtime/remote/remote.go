// Package remote runs workers that live on the other end of a WebSocket.
// The supervisor creates the runtime first; the worker then dials the
// bridge endpoint and the connection is handed over with Hub.Accept.
package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/wire"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxBacklog bounds frames queued before the worker connects
	maxBacklog = 256
)

var (
	ErrUnknownWorker    = errors.New("no remote worker waiting under that id")
	ErrAlreadyConnected = errors.New("remote worker already connected")
	ErrBacklogFull      = errors.New("remote worker backlog full")
	ErrKilled           = errors.New("remote worker killed")
)

// Runtime is one remote worker slot
type Runtime struct {
	hub *Hub
	id  types.ContextID

	link   worker.Link
	logger *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn  // Protected by mu
	dispatcher *wire.Dispatcher // Protected by mu
	backlog    []wire.Frame     // Protected by mu
	killed     bool             // Protected by mu
	writeMu    sync.Mutex

	exitOnce sync.Once
	done     chan struct{}
}

// Start registers the slot with the hub and waits for the worker to dial in
func (r *Runtime) Start(ctx context.Context, link worker.Link) error {
	r.link = link
	r.logger = link.Logger().With(zap.String("runtime", "remote"))
	r.hub.register(r)
	r.logger.Info("Waiting for remote worker")
	return nil
}

// Deliver forwards a bus message, queueing it until the worker connects
func (r *Runtime) Deliver(msg *types.Message) error {
	return r.write(wire.FromMessage(msg))
}

// Control forwards a host hint. Closing a slot nobody connected to
// completes immediately.
func (r *Runtime) Control(c worker.Control) error {
	if c.Kind == worker.ControlClose {
		r.mu.Lock()
		connected := r.conn != nil
		r.mu.Unlock()
		if !connected {
			r.exit(nil)
			return nil
		}
	}
	return r.write(wire.FromControl(c))
}

// Kill drops the connection
func (r *Runtime) Kill() error {
	if r.link == nil {
		return nil
	}
	r.mu.Lock()
	r.killed = true
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		r.exit(ErrKilled)
		return nil
	}
	return conn.Close()
}

// Done is closed when the slot is finished
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// accept binds conn to the slot, sends init and flushes the backlog.
// writeMu is held until the backlog is out so later frames queue behind it.
func (r *Runtime) accept(conn *websocket.Conn) error {
	r.writeMu.Lock()
	r.mu.Lock()
	if r.conn != nil || r.killed {
		r.mu.Unlock()
		r.writeMu.Unlock()
		return ErrAlreadyConnected
	}
	r.conn = conn
	r.dispatcher = wire.NewDispatcher(r.link, r.write)
	backlog := r.backlog
	r.backlog = nil
	r.mu.Unlock()

	r.logger.Info("Remote worker connected", zap.String("addr", conn.RemoteAddr().String()))

	err := r.writeLocked(conn, wire.Init(r.link))
	for i := 0; err == nil && i < len(backlog); i++ {
		err = r.writeLocked(conn, backlog[i])
	}
	r.writeMu.Unlock()
	if err != nil {
		r.dispatcher.Close()
		_ = conn.Close()
		r.exit(err)
		return nil
	}

	stop := make(chan struct{})
	go r.pinger(conn, stop)
	go r.readLoop(conn, stop)
	return nil
}

func (r *Runtime) write(f wire.Frame) error {
	r.mu.Lock()
	conn := r.conn
	if conn == nil {
		defer r.mu.Unlock()
		if len(r.backlog) >= maxBacklog {
			return ErrBacklogFull
		}
		r.backlog = append(r.backlog, f)
		return nil
	}
	r.mu.Unlock()
	return r.writeConn(conn, f)
}

func (r *Runtime) writeConn(conn *websocket.Conn, f wire.Frame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.writeLocked(conn, f)
}

func (r *Runtime) writeLocked(conn *websocket.Conn, f wire.Frame) error {
	data, err := wire.JSON.Marshal(&f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Runtime) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			killed := r.killed
			dispatcher := r.dispatcher
			r.mu.Unlock()
			dispatcher.Close()
			_ = conn.Close()
			switch {
			case killed:
				r.exit(ErrKilled)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				r.exit(nil)
			default:
				r.exit(err)
			}
			return
		}

		var f wire.Frame
		if err := wire.JSON.Unmarshal(data, &f); err != nil {
			r.logger.Warn("Malformed frame from remote worker", zap.Error(err))
			continue
		}
		if err := r.dispatcher.Handle(f); err != nil {
			r.logger.Warn("Bad frame from remote worker", zap.String("kind", string(f.Kind)), zap.Error(err))
		}
	}
}

func (r *Runtime) pinger(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			r.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (r *Runtime) exit(err error) {
	r.exitOnce.Do(func() {
		r.hub.unregister(r)
		close(r.done)
		r.logger.Info("Remote worker finished", zap.Error(err))
		r.link.Exited(err)
	})
}
