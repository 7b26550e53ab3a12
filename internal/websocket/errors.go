package websocket

import "errors"

// Connection-related errors
var (
	ErrQueueClosed = errors.New("outbound queue closed")
	ErrQueueFull   = errors.New("outbound queue full")
)

// Registry-related errors
var (
	ErrNilConnection           = errors.New("connection cannot be nil")
	ErrHandleAlreadyRegistered = errors.New("connection handle already registered")
)
