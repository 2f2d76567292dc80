package exception

import "github.com/yanun0323/errors"

// Market data errors
var (
	ErrEmptyOrderBook   = errors.New("order book side is empty")
	ErrRetriesExhausted = errors.New("exchange retries exhausted")
)

// Monitor daemon errors
var (
	ErrMonitorNotRunning     = errors.New("kelly monitor daemon is not running")
	ErrMonitorAlreadyRunning = errors.New("kelly monitor daemon is already running")
	ErrTokenAlreadyMonitored = errors.New("token is already being monitored")
	ErrSessionNotFound       = errors.New("monitoring session not found")
)
