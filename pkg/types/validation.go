package types

import (
	"regexp"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
// 1-64 characters, alphanumeric plus underscore and hyphen.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidStatus reports whether s is a status a client may set.
// Offline is excluded: it is only reachable through leave or disconnect.
func IsValidStatus(s UserStatus) bool {
	switch s {
	case StatusOnline, StatusBusy, StatusAway:
		return true
	default:
		return false
	}
}

// MaxSignalPayloadBytes bounds SDP offers, answers and ICE candidates.
// Payloads are opaque to the server, so size is the only check applied.
const MaxSignalPayloadBytes = 65536

// IsValidSignalPayload checks an opaque signaling payload for relay.
func IsValidSignalPayload(payload []byte) bool {
	return len(payload) > 0 && len(payload) <= MaxSignalPayloadBytes
}
