package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/supervisor"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var remote *bus.RemoteError
	switch {
	case errors.Is(err, gateway.ErrChannelDenied):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrSchemaViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, supervisor.ErrUnknownWorker):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrDuplicateLogicalID), errors.Is(err, worker.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrInvalidLogicalID):
		return http.StatusBadRequest
	case errors.Is(err, bus.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, bus.ErrWorkerGone):
		return http.StatusGone
	case errors.Is(err, bus.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, supervisor.ErrClosed), errors.Is(err, bus.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &remote):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
