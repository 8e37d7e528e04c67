package gateway

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrInvalidJSON      = errors.New("failed to marshal JSON")
	ErrNilConnection    = errors.New("connection cannot be nil")
)
