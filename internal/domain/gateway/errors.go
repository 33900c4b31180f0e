package gateway

import "errors"

var (
	ErrChannelDenied    = errors.New("channel denied")
	ErrSchemaViolation  = errors.New("schema violation")
	ErrDuplicateChannel = errors.New("duplicate channel")
	ErrGatewayFrozen    = errors.New("gateway frozen")
	ErrInvalidChannel   = errors.New("invalid channel")
)
