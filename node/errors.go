package node

import "errors"

var (
	ErrNoWriter  = errors.New("No write function is configured")
	ErrTransport = errors.New("Transport failed to write frame")
)
