package gateway

import (
	"errors"

	"github.com/rs/zerolog/log"

	"signalhub/internal/call"
	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

// handleEvent dispatches one decoded client event. The switch covers
// every type DecodeInbound can produce, so an unhandled event cannot
// slip through silently.
func (h *Handler) handleEvent(conn *Connection, ev types.InboundEvent) {
	switch ev := ev.(type) {
	case types.JoinEvent:
		h.handleJoin(conn)
	case types.LeaveEvent:
		h.goOffline(conn)
	case types.TypingEvent:
		h.handleTyping(conn, ev)
	case types.UpdateStatusEvent:
		h.handleUpdateStatus(conn, ev)
	case types.CallUserEvent:
		h.handleCallUser(conn, ev)
	case types.AnswerCallEvent:
		h.handleAnswerCall(conn, ev)
	case types.RejectCallEvent:
		h.handleRejectCall(conn, ev)
	case types.EndCallEvent:
		h.handleEndCall(conn, ev)
	case types.IceCandidateEvent:
		h.handleIceCandidate(conn, ev)
	case types.PingEvent:
		h.send(conn, types.EventPong, nil)
	}
}

// handleJoin announces the user if they are not already present and
// replies with the current roster. Presence is normally established at
// the handshake, so the announce only fires on a rejoin after leave.
func (h *Handler) handleJoin(conn *Connection) {
	if _, ok := h.presence.Get(conn.UserID()); !ok {
		h.presence.Connect(conn.UserID(), conn.ConnID())
		h.broadcastPresence()
	}

	h.send(conn, types.EventOnlineUsers, types.OnlineUsersPayload{
		Users: h.presence.Snapshot(),
	})
}

// handleTyping relays a typing indicator. Indicators are ephemeral:
// an offline recipient just drops it.
func (h *Handler) handleTyping(conn *Connection, ev types.TypingEvent) {
	if ev.To == "" {
		h.sendError(conn, types.ErrCodeBadPayload, "typing requires a recipient")
		return
	}

	h.sendTo(ev.To, types.EventUserTyping, types.TypingPayload{
		From:     conn.UserID(),
		IsTyping: ev.IsTyping,
	})
}

// handleUpdateStatus mutates the sender's advertised status. A sender
// with no presence entry is ignored, not errored: the update may race
// their own leave.
func (h *Handler) handleUpdateStatus(conn *Connection, ev types.UpdateStatusEvent) {
	_, changed, err := h.presence.SetStatus(conn.UserID(), ev.Status)
	if err != nil {
		h.sendError(conn, types.ErrCodeBadPayload, "invalid status")
		return
	}
	if !changed {
		return
	}

	h.broadcastPresence()
}

func (h *Handler) handleCallUser(conn *Connection, ev types.CallUserEvent) {
	if len(ev.Payload) > 0 && !types.IsValidSignalPayload(ev.Payload) {
		h.sendError(conn, types.ErrCodeBadPayload, "signal payload too large")
		return
	}

	rec, err := h.calls.RequestCall(conn.UserID(), ev.To, ev.Payload)
	if err != nil {
		switch {
		case errors.Is(err, call.ErrCalleeOffline):
			h.sendError(conn, types.ErrCodeUnreachable, "user is not online")
		case errors.Is(err, call.ErrAlreadyInCall):
			h.sendError(conn, types.ErrCodeAlreadyInCall, "a call is already in progress")
		default:
			h.sendError(conn, types.ErrCodeInvalidOperation, err.Error())
		}
		return
	}

	delivered := h.sendTo(rec.CalleeID, types.EventIncomingCall, types.IncomingCallPayload{
		CallID:  rec.ID,
		From:    rec.CallerID,
		Payload: rec.RequestSignal,
	})
	if !delivered {
		// Presence said online but the connection is already gone.
		// Fold the race into the normal miss path.
		_, _ = h.calls.EndCall(rec.ID, conn.UserID())
		h.sendError(conn, types.ErrCodeUnreachable, "user is not online")
		return
	}

	log.Info().
		Str("call_id", rec.ID).
		Str("caller_id", rec.CallerID).
		Str("callee_id", rec.CalleeID).
		Msg("call requested")
}

func (h *Handler) handleAnswerCall(conn *Connection, ev types.AnswerCallEvent) {
	if len(ev.Payload) > 0 && !types.IsValidSignalPayload(ev.Payload) {
		h.sendError(conn, types.ErrCodeBadPayload, "signal payload too large")
		return
	}

	rec, err := h.calls.AcceptCall(ev.CallID, conn.UserID(), ev.Payload)
	if err != nil {
		h.sendError(conn, types.ErrCodeInvalidOperation, err.Error())
		return
	}

	h.sendTo(rec.CallerID, types.EventCallAccepted, types.CallAcceptedPayload{
		CallID:  rec.ID,
		By:      conn.UserID(),
		Payload: rec.AnswerSignal,
	})

	// Flush the caller's early candidates to the callee now that the
	// call is committed.
	for _, cand := range h.calls.DrainCandidates(rec.ID) {
		h.send(conn, types.EventIceCandidate, cand)
	}

	log.Info().Str("call_id", rec.ID).Str("callee_id", conn.UserID()).Msg("call accepted")
}

func (h *Handler) handleRejectCall(conn *Connection, ev types.RejectCallEvent) {
	rec, err := h.calls.RejectCall(ev.CallID, conn.UserID())
	if err != nil {
		h.sendError(conn, types.ErrCodeInvalidOperation, err.Error())
		return
	}

	h.sendTo(rec.CallerID, types.EventCallRejected, types.CallRejectedPayload{
		CallID: rec.ID,
		By:     conn.UserID(),
	})

	log.Info().Str("call_id", rec.ID).Str("callee_id", conn.UserID()).Msg("call rejected")
}

func (h *Handler) handleEndCall(conn *Connection, ev types.EndCallEvent) {
	rec, err := h.calls.EndCall(ev.CallID, conn.UserID())
	if err != nil {
		h.sendError(conn, types.ErrCodeInvalidOperation, err.Error())
		return
	}
	if rec == nil {
		// Already finished: the peer hung up first or cleanup ran.
		return
	}

	h.sendTo(rec.PeerOf(conn.UserID()), types.EventCallEnded, types.CallEndedPayload{
		CallID: rec.ID,
		By:     conn.UserID(),
	})

	log.Info().Str("call_id", rec.ID).Str("ended_by", conn.UserID()).Str("outcome", string(rec.Outcome)).Msg("call ended")
}

func (h *Handler) handleIceCandidate(conn *Connection, ev types.IceCandidateEvent) {
	if !types.IsValidSignalPayload(ev.Candidate) {
		h.sendError(conn, types.ErrCodeBadPayload, "candidate missing or too large")
		return
	}

	relayTo, err := h.calls.AddCandidate(ev.CallID, conn.UserID(), ev.Candidate)
	if err != nil {
		h.sendError(conn, types.ErrCodeInvalidOperation, err.Error())
		return
	}
	if relayTo == "" {
		// Buffered for a pending call, or the call already finished.
		return
	}

	h.sendTo(relayTo, types.EventIceCandidate, types.IceCandidatePayload{
		CallID:    ev.CallID,
		From:      conn.UserID(),
		Candidate: ev.Candidate,
	})
}

// goOffline ends the user's calls and withdraws their presence. Shared
// by the leave event and connection teardown, in that order: peers are
// told their call ended before the offline broadcast goes out.
func (h *Handler) goOffline(conn *Connection) {
	userID := conn.UserID()

	for _, rec := range h.calls.CleanupForUser(userID) {
		h.sendTo(rec.PeerOf(userID), types.EventCallEnded, types.CallEndedPayload{
			CallID: rec.ID,
			By:     userID,
		})
	}

	if h.presence.Disconnect(userID, conn.ConnID()) {
		h.broadcastPresence()
	}
}

// broadcastPresence pushes the full presence set to every connection.
// Fired after connect, status change and disconnect, so clients always
// converge on the latest roster.
func (h *Handler) broadcastPresence() {
	h.broadcast(types.EventUserStatusChange, types.StatusChangePayload{
		Users: h.presence.Snapshot(),
	})
}

func (h *Handler) send(conn interfaces.Conn, eventType string, payload interface{}) {
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to build envelope")
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Debug().Err(err).Str("user_id", conn.UserID()).Str("event", eventType).Msg("write failed")
	}
}

// sendTo delivers an event to a user's current connection. Returns
// false when the user has no connection or the write fails.
func (h *Handler) sendTo(userID, eventType string, payload interface{}) bool {
	conn, ok := h.registry.Get(userID)
	if !ok {
		return false
	}

	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to build envelope")
		return false
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Str("event", eventType).Msg("write failed")
		return false
	}
	return true
}

func (h *Handler) broadcast(eventType string, payload interface{}) {
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to build envelope")
		return
	}
	h.registry.Broadcast(env)
}

func (h *Handler) sendError(conn interfaces.Conn, code, message string) {
	h.send(conn, types.EventError, types.ErrorPayload{Code: code, Message: message})
}
