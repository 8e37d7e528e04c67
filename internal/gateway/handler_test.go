package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/auth"
	"signalhub/internal/call"
	"signalhub/internal/presence"
	"signalhub/pkg/types"
)

const testSecret = "handler-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	pres := presence.NewRegistry(nil)
	calls := call.NewCoordinator(nil, pres, nil)
	verifier := auth.NewVerifier(testSecret)
	handler := NewHandler(NewRegistry(), pres, calls, verifier, HandlerConfig{})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dialWS(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signTestToken(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	env, err := types.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

// waitFor reads frames until one matches eventType, skipping unrelated
// presence broadcasts along the way.
func waitFor(t *testing.T, conn *websocket.Conn, eventType string) types.Envelope {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))

		var env types.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", eventType)
		if env.Type == eventType {
			return env
		}
	}
}

func decodePayload(t *testing.T, env types.Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RejectsBadToken(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_ConnectBroadcastsPresence(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")

	env := waitFor(t, alice, types.EventUserStatusChange)
	var payload types.StatusChangePayload
	decodePayload(t, env, &payload)
	require.Len(t, payload.Users, 1)
	assert.Equal(t, "alice", payload.Users[0].UserID)
	assert.Equal(t, types.StatusOnline, payload.Users[0].Status)

	// A peer connecting pushes the whole roster, not a single-user delta.
	dialWS(t, srv, "bob")

	env = waitFor(t, alice, types.EventUserStatusChange)
	decodePayload(t, env, &payload)
	require.Len(t, payload.Users, 2)
	assert.Equal(t, "alice", payload.Users[0].UserID)
	assert.Equal(t, "bob", payload.Users[1].UserID)
}

func TestHandler_JoinReturnsRoster(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")
	waitFor(t, bob, types.EventUserStatusChange)

	sendEvent(t, alice, types.EventJoin, nil)

	env := waitFor(t, alice, types.EventOnlineUsers)
	var payload types.OnlineUsersPayload
	decodePayload(t, env, &payload)

	require.Len(t, payload.Users, 2)
	assert.Equal(t, "alice", payload.Users[0].UserID)
	assert.Equal(t, "bob", payload.Users[1].UserID)
}

func TestHandler_PingPong(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice")
	sendEvent(t, conn, types.EventPing, nil)
	waitFor(t, conn, types.EventPong)
}

func TestHandler_TypingRelay(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	sendEvent(t, alice, types.EventTyping, types.TypingEvent{To: "bob", IsTyping: true})

	env := waitFor(t, bob, types.EventUserTyping)
	var payload types.TypingPayload
	decodePayload(t, env, &payload)
	assert.Equal(t, "alice", payload.From)
	assert.True(t, payload.IsTyping)

	// The stop indicator relays too, so the recipient can clear it.
	sendEvent(t, alice, types.EventTyping, types.TypingEvent{To: "bob", IsTyping: false})

	env = waitFor(t, bob, types.EventUserTyping)
	decodePayload(t, env, &payload)
	assert.False(t, payload.IsTyping)
}

func TestHandler_UpdateStatusBroadcast(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	sendEvent(t, alice, types.EventUpdateStatus, types.UpdateStatusEvent{Status: types.StatusBusy})

	for {
		env := waitFor(t, bob, types.EventUserStatusChange)
		var payload types.StatusChangePayload
		decodePayload(t, env, &payload)
		for _, u := range payload.Users {
			if u.UserID == "alice" && u.Status == types.StatusBusy {
				return
			}
		}
	}
}

func TestHandler_UpdateStatusAfterLeaveIsSilent(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice")

	sendEvent(t, conn, types.EventLeave, nil)
	sendEvent(t, conn, types.EventUpdateStatus, types.UpdateStatusEvent{Status: types.StatusAway})
	sendEvent(t, conn, types.EventPing, nil)

	// Events are handled in order, so reaching the pong without an
	// error frame means the status update was silently dropped.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))

		var env types.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		switch env.Type {
		case types.EventError:
			t.Fatalf("unexpected error frame: %s", env.Data)
		case types.EventPong:
			return
		}
	}
}

func TestHandler_CallFlow(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	sendEvent(t, alice, types.EventCallUser, types.CallUserEvent{
		To:      "bob",
		Payload: json.RawMessage(`{"sdp":"offer"}`),
	})

	env := waitFor(t, bob, types.EventIncomingCall)
	var incoming types.IncomingCallPayload
	decodePayload(t, env, &incoming)
	assert.Equal(t, "alice", incoming.From)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(incoming.Payload))

	sendEvent(t, bob, types.EventAnswerCall, types.AnswerCallEvent{
		CallID:  incoming.CallID,
		Payload: json.RawMessage(`{"sdp":"answer"}`),
	})

	env = waitFor(t, alice, types.EventCallAccepted)
	var accepted types.CallAcceptedPayload
	decodePayload(t, env, &accepted)
	assert.Equal(t, incoming.CallID, accepted.CallID)
	assert.Equal(t, "bob", accepted.By)
	assert.JSONEq(t, `{"sdp":"answer"}`, string(accepted.Payload))

	sendEvent(t, alice, types.EventIceCandidate, types.IceCandidateEvent{
		CallID:    incoming.CallID,
		Candidate: json.RawMessage(`{"c":1}`),
	})

	env = waitFor(t, bob, types.EventIceCandidate)
	var cand types.IceCandidatePayload
	decodePayload(t, env, &cand)
	assert.Equal(t, "alice", cand.From)

	sendEvent(t, alice, types.EventEndCall, types.EndCallEvent{CallID: incoming.CallID})

	env = waitFor(t, bob, types.EventCallEnded)
	var ended types.CallEndedPayload
	decodePayload(t, env, &ended)
	assert.Equal(t, incoming.CallID, ended.CallID)
	assert.Equal(t, "alice", ended.By)
}

func TestHandler_CallRejected(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	sendEvent(t, alice, types.EventCallUser, types.CallUserEvent{To: "bob"})

	env := waitFor(t, bob, types.EventIncomingCall)
	var incoming types.IncomingCallPayload
	decodePayload(t, env, &incoming)

	sendEvent(t, bob, types.EventRejectCall, types.RejectCallEvent{CallID: incoming.CallID})

	env = waitFor(t, alice, types.EventCallRejected)
	var rejected types.CallRejectedPayload
	decodePayload(t, env, &rejected)
	assert.Equal(t, incoming.CallID, rejected.CallID)
	assert.Equal(t, "bob", rejected.By)
}

func TestHandler_CallUnreachable(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")

	sendEvent(t, alice, types.EventCallUser, types.CallUserEvent{To: "nobody"})

	env := waitFor(t, alice, types.EventError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	assert.Equal(t, types.ErrCodeUnreachable, errPayload.Code)
}

func TestHandler_BusyCallee(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")
	carol := dialWS(t, srv, "carol")

	sendEvent(t, alice, types.EventCallUser, types.CallUserEvent{To: "bob"})
	waitFor(t, bob, types.EventIncomingCall)

	sendEvent(t, carol, types.EventCallUser, types.CallUserEvent{To: "bob"})

	env := waitFor(t, carol, types.EventError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	assert.Equal(t, types.ErrCodeAlreadyInCall, errPayload.Code)
}

func TestHandler_DisconnectEndsCallAndNotifiesPeer(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	sendEvent(t, alice, types.EventCallUser, types.CallUserEvent{To: "bob"})
	env := waitFor(t, bob, types.EventIncomingCall)
	var incoming types.IncomingCallPayload
	decodePayload(t, env, &incoming)

	sendEvent(t, bob, types.EventAnswerCall, types.AnswerCallEvent{CallID: incoming.CallID})
	waitFor(t, alice, types.EventCallAccepted)

	require.NoError(t, alice.Close())

	// Bob learns about the call first, then the offline broadcast.
	env = waitFor(t, bob, types.EventCallEnded)
	var ended types.CallEndedPayload
	decodePayload(t, env, &ended)
	assert.Equal(t, incoming.CallID, ended.CallID)
	assert.Equal(t, "alice", ended.By)

	for {
		env = waitFor(t, bob, types.EventUserStatusChange)
		var status types.StatusChangePayload
		decodePayload(t, env, &status)

		gone := true
		for _, u := range status.Users {
			if u.UserID == "alice" {
				gone = false
			}
		}
		if gone {
			return
		}
	}
}

func TestHandler_MalformedFrame(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp_drive"}`)))

	env := waitFor(t, conn, types.EventError)
	var errPayload types.ErrorPayload
	decodePayload(t, env, &errPayload)
	assert.Equal(t, types.ErrCodeBadPayload, errPayload.Code)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=xyz", nil)
	assert.Equal(t, "xyz", bearerToken(r))
}
