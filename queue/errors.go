package queue

import "errors"

var (
	ErrSourceExists   = errors.New("A source with this name already exists")
	ErrUnknownSource  = errors.New("Source does not exist")
	ErrInvalidSize    = errors.New("Packet size and queue capacity must be positive")
	ErrTooManySources = errors.New("No source ids left")
)
