package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Endpoint receives deliveries for one context. Deliver is called from a
// single goroutine per endpoint, in enqueue order.
type Endpoint interface {
	ID() types.ContextID
	Deliver(msg *types.Message) error
}

// mailbox is an unbounded FIFO in front of one endpoint
type mailbox struct {
	endpoint Endpoint
	logger   *zap.Logger

	mu     sync.Mutex
	queue  []*types.Message // Protected by mu
	closed bool             // Protected by mu

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newMailbox(endpoint Endpoint, logger *zap.Logger) *mailbox {
	m := &mailbox{
		endpoint: endpoint,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// push enqueues without blocking. Returns false once closed.
func (m *mailbox) push(msg *types.Message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
		}

		for {
			m.mu.Lock()
			if m.closed || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			msg := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()

			if err := m.endpoint.Deliver(msg); err != nil {
				m.logger.Warn("Delivery failed",
					zap.String("to", m.endpoint.ID().String()),
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
			}
		}
	}
}

// close drops anything still queued and stops the drain goroutine
func (m *mailbox) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	close(m.quit)
}
