package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/supervisor"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/windowstate"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/tracing"
)

// Preparer validates a worker config and fills content-derived defaults
type Preparer interface {
	Prepare(cfg *supervisor.Config) error
}

// Deps are the components the control API drives
type Deps struct {
	Supervisor *supervisor.Supervisor
	Bus        *bus.Bus
	Gateway    *gateway.Gateway
	Store      *windowstate.Store
	Preparer   Preparer
	Metrics    *monitoring.Metrics
	Tracer     *tracing.Tracer
	Logger     *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sup      *supervisor.Supervisor
	bus      *bus.Bus
	gateway  *gateway.Gateway
	store    *windowstate.Store
	preparer Preparer
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	logger   *zap.Logger
	started  time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handlers{
		sup:      deps.Supervisor,
		bus:      deps.Bus,
		gateway:  deps.Gateway,
		store:    deps.Store,
		preparer: deps.Preparer,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		started:  time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/workers", h.ListWorkers)
	r.POST("/workers", h.CreateWorker)
	r.GET("/workers/:id", h.GetWorker)
	r.DELETE("/workers/:id", h.CloseWorker)
	r.POST("/workers/:id/bounds", h.SetBounds)
	r.POST("/workers/:id/show", h.ShowWorker)
	r.POST("/workers/:id/hide", h.HideWorker)
	r.POST("/workers/:id/request", h.RequestWorker)

	r.GET("/channels", h.ListChannels)
	r.POST("/channels/:id/send", h.SendChannel)

	r.GET("/windows", h.ListWindows)
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "AgentOS shell host",
	})
}

// Health reports degraded once an essential worker is unrecoverable
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	if h.sup.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"workers":          len(h.sup.Workers()),
		"unrecoverable":    h.sup.Unrecoverable(),
		"pending_requests": h.bus.Pending(),
		"uptime_seconds":   int64(time.Since(h.started).Seconds()),
		"metrics":          h.metrics.Snapshot(),
	})
}
