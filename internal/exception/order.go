package exception

import "github.com/yanun0323/errors"

// Order submission and validation errors
var (
	ErrDaemonNotRunning     = errors.New("order daemon is not running")
	ErrDaemonAlreadyRunning = errors.New("order daemon is already running")
	ErrOrderQueueFull       = errors.New("order queue is full")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidRequest       = errors.New("invalid order request")
	ErrUnknownStrategy      = errors.New("unknown strategy type")
)
