package supervisor

import "errors"

var (
	ErrDuplicateLogicalID  = errors.New("a live worker already uses this logical id")
	ErrWorkerUnrecoverable = errors.New("worker exhausted its restart policy")
	ErrUnknownWorker       = errors.New("unknown worker")
	ErrInvalidLogicalID    = errors.New("invalid logical id")
	ErrClosed              = errors.New("supervisor closed")
	ErrKillTimeout         = errors.New("worker did not exit after kill")
)
