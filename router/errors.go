package router

import "errors"

var (
	ErrNameTaken  = errors.New("A handler with this name is already registered")
	ErrNotFound   = errors.New("No handler with this name is registered")
	ErrNilHandler = errors.New("Handler func must not be nil")
)
