package bus

import "errors"

var (
	ErrTimeout     = errors.New("request timed out")
	ErrWorkerGone  = errors.New("worker gone")
	ErrCancelled   = errors.New("request cancelled")
	ErrNoTarget    = errors.New("request has no target")
	ErrNoHandler   = errors.New("no handler for channel")
	ErrRateLimited = errors.New("send rate exceeded")
	ErrClosed      = errors.New("bus closed")
)

// RemoteError carries an error message reported by a worker
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
