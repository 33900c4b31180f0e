package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// ListChannels returns the gateway table
func (h *Handlers) ListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"channels": h.gateway.Channels(),
		"frozen":   h.gateway.Frozen(),
	})
}

// SendChannel broadcasts a host message, or targets one worker when "to"
// is set
func (h *Handlers) SendChannel(c *gin.Context) {
	var req types.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	channel := c.Param("id")

	var err error
	if req.To != "" {
		err = h.bus.SendTo(types.HostContext, req.To, channel, req.Payload)
	} else {
		err = h.bus.Send(types.HostContext, channel, req.Payload)
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": channel})
}

// ListWindows returns persisted window geometry
func (h *Handlers) ListWindows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"path":    h.store.Path(),
		"windows": h.store.All(),
	})
}
