package types

import (
	"encoding/json"
	"time"
)

// UserStatus is the advertised availability of a connected user.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusBusy    UserStatus = "busy"
	StatusAway    UserStatus = "away"
	StatusOffline UserStatus = "offline"
)

// CallState tracks a call through its lifecycle.
// Valid transitions: pending -> active -> ended, pending -> rejected,
// pending -> ended. Terminal states are never left.
type CallState string

const (
	CallStatePending  CallState = "pending"
	CallStateActive   CallState = "active"
	CallStateEnded    CallState = "ended"
	CallStateRejected CallState = "rejected"
)

// CallOutcome classifies a finished call for the archive.
type CallOutcome string

const (
	OutcomeCompleted CallOutcome = "completed"
	OutcomeRejected  CallOutcome = "rejected"
	OutcomeMissed    CallOutcome = "missed"
)

// PresenceEntry records one user's live connection state.
// At most one entry exists per user; a reconnect replaces the
// previous entry rather than adding a second one.
type PresenceEntry struct {
	UserID   string     `json:"user_id"`
	ConnID   string     `json:"conn_id"`
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
}

// CallRecord is the authoritative state of a single call attempt.
// RequestSignal and AnswerSignal hold the participants' opaque session
// descriptions: the request signal is captured at creation, the answer
// signal on accept. Outcome, EndedAt and EndedBy are only set once the
// record reaches a terminal state.
type CallRecord struct {
	ID            string          `json:"id"`
	CallerID      string          `json:"caller_id"`
	CalleeID      string          `json:"callee_id"`
	State         CallState       `json:"state"`
	Outcome       CallOutcome     `json:"outcome,omitempty"`
	RequestSignal json.RawMessage `json:"request_signal,omitempty"`
	AnswerSignal  json.RawMessage `json:"answer_signal,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	AnsweredAt    *time.Time      `json:"answered_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	EndedBy       string          `json:"ended_by,omitempty"`
}

// Terminal reports whether the record has reached a final state.
func (r *CallRecord) Terminal() bool {
	return r.State == CallStateEnded || r.State == CallStateRejected
}

// Involves reports whether userID is one of the two participants.
func (r *CallRecord) Involves(userID string) bool {
	return r.CallerID == userID || r.CalleeID == userID
}

// PeerOf returns the other participant, or "" if userID is not a participant.
func (r *CallRecord) PeerOf(userID string) string {
	switch userID {
	case r.CallerID:
		return r.CalleeID
	case r.CalleeID:
		return r.CallerID
	}
	return ""
}

// Duration returns the answered-to-ended span, or zero if the call
// was never answered or has not ended.
func (r *CallRecord) Duration() time.Duration {
	if r.AnsweredAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.AnsweredAt)
}
