package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/supervisor"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// maxRequestTimeout caps caller-supplied request timeouts
const maxRequestTimeout = 5 * time.Minute

// WorkerView is the JSON shape of a worker
type WorkerView struct {
	ID         types.ContextID `json:"id"`
	InstanceID string          `json:"instance_id,omitempty"`
	Kind       string          `json:"kind"`
	Title      string          `json:"title,omitempty"`
	ParentID   types.ContextID `json:"parent_id,omitempty"`
	Essential  bool            `json:"essential"`
	State      string          `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Restarts   int             `json:"restarts"`
	Bounds     *types.Bounds   `json:"bounds,omitempty"`
	Minimized  bool            `json:"minimized"`
}

func viewOf(w *supervisor.Worker) WorkerView {
	v := WorkerView{
		ID:        w.LogicalID,
		Kind:      w.Config.Kind,
		Title:     w.Config.Title,
		ParentID:  w.Config.ParentID,
		Essential: w.Config.Essential,
		State:     string(w.State()),
		Restarts:  w.Restarts(),
	}
	if err := w.Err(); err != nil {
		v.Error = err.Error()
	}
	if h := w.Handle(); h != nil {
		b := h.Bounds()
		v.InstanceID = string(h.InstanceID())
		v.Reason = h.Reason()
		v.Bounds = &b
		v.Minimized = h.Minimized()
		if v.Error == "" && h.Err() != nil {
			v.Error = h.Err().Error()
		}
	}
	return v
}

// ListWorkers returns every live worker
func (h *Handlers) ListWorkers(c *gin.Context) {
	workers := h.sup.Workers()
	views := make([]WorkerView, 0, len(workers))
	for _, w := range workers {
		views = append(views, viewOf(w))
	}
	c.JSON(http.StatusOK, gin.H{
		"workers":       views,
		"unrecoverable": h.sup.Unrecoverable(),
	})
}

// CreateWorker starts a worker
func (h *Handlers) CreateWorker(c *gin.Context) {
	var req types.CreateWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := supervisor.Config{
		Kind:      req.Kind,
		Source:    req.Source,
		Inline:    req.Inline,
		Command:   req.Command,
		Args:      req.Args,
		ParentID:  req.ParentID,
		Essential: req.Essential,
		Title:     req.Title,
		Bounds:    req.Bounds,
	}
	if h.preparer != nil {
		if err := h.preparer.Prepare(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	w, err := h.sup.CreateWorker(c.Request.Context(), req.ID, cfg)
	if w == nil {
		abortWith(c, err)
		return
	}
	if err != nil {
		// The worker exists and is on its crash path
		h.logger.Warn("Worker failed to start", zap.String("logical_id", string(req.ID)), zap.Error(err))
	}
	c.JSON(http.StatusCreated, viewOf(w))
}

// GetWorker returns one worker
func (h *Handlers) GetWorker(c *gin.Context) {
	w, ok := h.worker(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(w))
}

// CloseWorker closes a worker and its children
func (h *Handlers) CloseWorker(c *gin.Context) {
	id := types.ContextID(c.Param("id"))
	if err := h.sup.CloseWorker(c.Request.Context(), id); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": id})
}

// SetBounds moves or resizes a worker window
func (h *Handlers) SetBounds(c *gin.Context) {
	w, ok := h.worker(c)
	if !ok {
		return
	}
	var req types.BoundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := w.SetBounds(req.Bounds()); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(w))
}

// ShowWorker makes a window visible
func (h *Handlers) ShowWorker(c *gin.Context) {
	w, ok := h.worker(c)
	if !ok {
		return
	}
	if err := w.Show(); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(w))
}

// HideWorker suspends a window
func (h *Handlers) HideWorker(c *gin.Context) {
	w, ok := h.worker(c)
	if !ok {
		return
	}
	if err := w.Hide(); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(w))
}

// RequestWorker makes a host request to one worker and waits for the reply
func (h *Handlers) RequestWorker(c *gin.Context) {
	w, ok := h.worker(c)
	if !ok {
		return
	}
	var req types.WorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := []bus.RequestOption{bus.WithTarget(w.LogicalID)}
	if req.TimeoutMS > 0 {
		timeout := time.Duration(req.TimeoutMS) * time.Millisecond
		if timeout > maxRequestTimeout {
			timeout = maxRequestTimeout
		}
		opts = append(opts, bus.WithTimeout(timeout))
	}

	span, ctx := h.tracer.StartSpan(c.Request.Context(), "bus.request")
	span.SetTag("channel", req.Channel)
	span.SetTag("logical_id", string(w.LogicalID))
	out, err := h.bus.Invoke(ctx, types.HostContext, req.Channel, req.Payload, opts...)
	h.tracer.Finish(span, err)
	if err != nil {
		h.logger.Debug("Worker request failed", append(tracing.Fields(ctx),
			zap.String("logical_id", string(w.LogicalID)),
			zap.String("channel", req.Channel),
			zap.Error(err),
		)...)
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": out})
}

func (h *Handlers) worker(c *gin.Context) (*supervisor.Worker, bool) {
	id := types.ContextID(c.Param("id"))
	w, ok := h.sup.Get(id)
	if !ok {
		abortWith(c, fmt.Errorf("%w: %s", supervisor.ErrUnknownWorker, id))
		return nil, false
	}
	return w, true
}
