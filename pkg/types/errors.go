package types

import "errors"

var (
	ErrInvalidUserID  = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidStatus  = errors.New("status must be one of: online, busy, away")
	ErrInvalidPayload = errors.New("signal payload missing or exceeds 64KB limit")
	ErrUnknownEvent   = errors.New("unknown event type")
)
