package interfaces

import (
	"context"

	"signalhub/pkg/types"
)

// TokenVerifier authenticates a bearer token presented during the
// websocket handshake and resolves it to a user ID.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// PresenceReader is the read-only presence view the call coordinator
// needs for reachability checks.
type PresenceReader interface {
	IsOnline(userID string) bool
}

// CallArchiver persists finished calls. Implementations must tolerate
// being called once per terminal record and never block call teardown
// on persistence failures.
type CallArchiver interface {
	ArchiveCall(ctx context.Context, rec *types.CallRecord) error
}
