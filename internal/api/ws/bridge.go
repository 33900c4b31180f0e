// Package ws exposes the websocket endpoint remote workers dial into.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/remote"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Handler upgrades /bridge/:id connections and hands them to the hub
type Handler struct {
	hub      *remote.Hub
	upgrader websocket.Upgrader
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a bridge handler. checkOrigin may be nil to allow
// any origin.
func NewHandler(hub *remote.Hub, metrics *monitoring.Metrics, logger *zap.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// HandleBridge handles GET /bridge/:id
func (h *Handler) HandleBridge(c *gin.Context) {
	id := types.ContextID(c.Param("id"))
	if !h.hub.Expecting(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no remote worker waiting under that id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Bridge upgrade failed", zap.String("logical_id", string(id)), zap.Error(err))
		return
	}

	done, err := h.hub.Accept(id, conn)
	if err != nil {
		h.logger.Warn("Bridge connection rejected", zap.String("logical_id", string(id)), zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}
	h.metrics.IncWSConnections()
	go func() {
		<-done
		h.metrics.DecWSConnections()
	}()
}
