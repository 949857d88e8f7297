package transport

import "errors"

var (
	ErrClosed         = errors.New("Connection is closed")
	ErrWriteQueueFull = errors.New("Write queue is full")
	ErrNotStarted     = errors.New("Transport has not been started")
)
