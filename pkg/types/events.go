package types

import (
	"encoding/json"
	"fmt"
)

// Client-to-server event types.
const (
	EventJoin         = "join"
	EventLeave        = "leave"
	EventTyping       = "typing"
	EventUpdateStatus = "update_status"
	EventCallUser     = "call_user"
	EventAnswerCall   = "answer_call"
	EventRejectCall   = "reject_call"
	EventEndCall      = "end_call"
	EventIceCandidate = "ice_candidate"
	EventPing         = "ping"
)

// Server-to-client event types.
const (
	EventOnlineUsers      = "online_users"
	EventUserStatusChange = "user_status_change"
	EventUserTyping       = "user_typing"
	EventIncomingCall     = "incoming_call"
	EventCallAccepted     = "call_accepted"
	EventCallRejected     = "call_rejected"
	EventCallEnded        = "call_ended"
	EventPong             = "pong"
	EventError            = "error"
)

// Error codes carried by the error event.
const (
	ErrCodeAuthFailed       = "auth_failed"
	ErrCodeBadPayload       = "bad_payload"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeUnreachable      = "unreachable"
	ErrCodeAlreadyInCall    = "already_in_call"
	ErrCodeRateLimited      = "rate_limited"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps a payload struct for sending.
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: eventType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Data: data}, nil
}

// InboundEvent is the closed set of events a client may send.
// DecodeInbound is the only constructor, so a type switch over
// these concrete types covers every case the decoder can produce.
type InboundEvent interface {
	inbound()
}

type JoinEvent struct{}

type LeaveEvent struct{}

type TypingEvent struct {
	To       string `json:"to"`
	IsTyping bool   `json:"is_typing"`
}

type UpdateStatusEvent struct {
	Status UserStatus `json:"status"`
}

type CallUserEvent struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AnswerCallEvent struct {
	CallID  string          `json:"call_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RejectCallEvent struct {
	CallID string `json:"call_id"`
}

type EndCallEvent struct {
	CallID string `json:"call_id"`
}

type IceCandidateEvent struct {
	CallID    string          `json:"call_id"`
	Candidate json.RawMessage `json:"candidate"`
}

type PingEvent struct{}

func (JoinEvent) inbound()         {}
func (LeaveEvent) inbound()        {}
func (TypingEvent) inbound()       {}
func (UpdateStatusEvent) inbound() {}
func (CallUserEvent) inbound()     {}
func (AnswerCallEvent) inbound()   {}
func (RejectCallEvent) inbound()   {}
func (EndCallEvent) inbound()      {}
func (IceCandidateEvent) inbound() {}
func (PingEvent) inbound()         {}

// DecodeInbound parses a raw client frame into a typed event.
// Unknown event types return ErrUnknownEvent.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch env.Type {
	case EventJoin:
		return JoinEvent{}, nil
	case EventLeave:
		return LeaveEvent{}, nil
	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventUpdateStatus:
		var ev UpdateStatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventCallUser:
		var ev CallUserEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventAnswerCall:
		var ev AnswerCallEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventRejectCall:
		var ev RejectCallEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventEndCall:
		var ev EndCallEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventIceCandidate:
		var ev IceCandidateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case EventPing:
		return PingEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// OnlineUsersPayload answers a join with the current roster.
type OnlineUsersPayload struct {
	Users []PresenceEntry `json:"users"`
}

// StatusChangePayload broadcasts the full presence set after any
// transition. Carrying the whole roster instead of a delta means a
// client that misses a frame is still consistent after the next one,
// and a departed user is absent rather than flagged.
type StatusChangePayload struct {
	Users []PresenceEntry `json:"users"`
}

// TypingPayload relays a typing indicator to its recipient. IsTyping
// false signals the indicator should clear.
type TypingPayload struct {
	From     string `json:"from"`
	IsTyping bool   `json:"is_typing"`
}

// IncomingCallPayload notifies a callee of a new pending call.
// Payload carries the caller's opaque session description.
type IncomingCallPayload struct {
	CallID  string          `json:"call_id"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CallAcceptedPayload struct {
	CallID  string          `json:"call_id"`
	By      string          `json:"by"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CallRejectedPayload struct {
	CallID string `json:"call_id"`
	By     string `json:"by"`
}

type CallEndedPayload struct {
	CallID string `json:"call_id"`
	By     string `json:"by"`
}

// IceCandidatePayload relays one transport candidate between peers.
type IceCandidatePayload struct {
	CallID    string          `json:"call_id"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
