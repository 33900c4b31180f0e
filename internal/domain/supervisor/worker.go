package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Worker is a logical worker. It outlives the handles of its individual
// incarnations.
type Worker struct {
	LogicalID types.ContextID
	Config    Config

	sup     *Supervisor
	backoff *resilience.Backoff

	mu           sync.RWMutex
	handle       *worker.Handle // Protected by mu
	closing      bool           // Protected by mu
	finished     bool           // Protected by mu
	err          error          // Protected by mu
	restarts     int            // Protected by mu
	restartTimer clock.Timer    // Protected by mu
	done         chan struct{}
}

// Handle returns the current incarnation, nil before the first start
func (w *Worker) Handle() *worker.Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handle
}

// State is the state of the current incarnation
func (w *Worker) State() worker.State {
	h := w.Handle()
	if h == nil {
		return worker.StateCreated
	}
	return h.State()
}

// Err is why the worker finished, nil for a normal close
func (w *Worker) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Done is closed when the worker finished for good
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Restarts counts restarts since creation
func (w *Worker) Restarts() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.restarts
}

// Finished reports whether Done is closed
func (w *Worker) Finished() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.finished
}

// SetBounds moves or resizes the window
func (w *Worker) SetBounds(b types.Bounds) error {
	h, err := w.live()
	if err != nil {
		return err
	}
	return h.SetBounds(b)
}

// Show makes the window visible
func (w *Worker) Show() error {
	h, err := w.live()
	if err != nil {
		return err
	}
	return h.Show()
}

// Hide suspends the window
func (w *Worker) Hide() error {
	h, err := w.live()
	if err != nil {
		return err
	}
	return h.Hide()
}

// Close closes the worker and its children
func (w *Worker) Close(ctx context.Context) error {
	return w.sup.CloseWorker(ctx, w.LogicalID)
}

func (w *Worker) live() (*worker.Handle, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.finished || w.handle == nil {
		return nil, fmt.Errorf("%w: %s is not running", worker.ErrInvalidState, w.LogicalID)
	}
	return w.handle, nil
}

// finish closes Done once. Reports whether this call did it.
func (w *Worker) finish(err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return false
	}
	w.finished = true
	w.err = err
	if w.restartTimer != nil {
		w.restartTimer.Stop()
		w.restartTimer = nil
	}
	close(w.done)
	return true
}
