package interfaces

import (
	"signalhub/pkg/types"
)

// PresenceStore holds presence entries keyed by user ID.
// Implementations are plain containers: callers own synchronization
// and any compound read-modify-write sequences.
type PresenceStore interface {
	Get(userID string) (types.PresenceEntry, bool)
	Set(entry types.PresenceEntry)
	Delete(userID string)

	// ForEach visits every entry until fn returns false.
	ForEach(fn func(entry types.PresenceEntry) bool)

	Len() int
}

// CallStore holds call records keyed by call ID. Like PresenceStore,
// implementations carry no locking of their own.
type CallStore interface {
	Get(callID string) (*types.CallRecord, bool)
	Put(rec *types.CallRecord)
	Delete(callID string)

	// ForEach visits every record until fn returns false.
	ForEach(fn func(rec *types.CallRecord) bool)
}
