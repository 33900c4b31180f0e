package worker

import "errors"

var (
	ErrLoadTimeout  = errors.New("worker did not signal ready in time")
	ErrInvalidState = errors.New("invalid state for operation")
	ErrExited       = errors.New("runtime exited unexpectedly")
)
