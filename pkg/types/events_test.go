package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound_TypedEvents(t *testing.T) {
	raw := []byte(`{"type":"call_user","data":{"to":"bob","payload":{"sdp":"offer"}}}`)

	ev, err := DecodeInbound(raw)
	require.NoError(t, err)

	callEv, ok := ev.(CallUserEvent)
	require.True(t, ok, "expected CallUserEvent, got %T", ev)
	assert.Equal(t, "bob", callEv.To)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(callEv.Payload))
}

func TestDecodeInbound_EventsWithoutData(t *testing.T) {
	ev, err := DecodeInbound([]byte(`{"type":"join"}`))
	require.NoError(t, err)
	assert.IsType(t, JoinEvent{}, ev)

	ev, err = DecodeInbound([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.IsType(t, PingEvent{}, ev)

	ev, err = DecodeInbound([]byte(`{"type":"leave"}`))
	require.NoError(t, err)
	assert.IsType(t, LeaveEvent{}, ev)
}

func TestDecodeInbound_AllEventTypes(t *testing.T) {
	cases := []struct {
		raw  string
		want InboundEvent
	}{
		{`{"type":"typing","data":{"to":"bob","is_typing":true}}`, TypingEvent{To: "bob", IsTyping: true}},
		{`{"type":"typing","data":{"to":"bob","is_typing":false}}`, TypingEvent{To: "bob"}},
		{`{"type":"update_status","data":{"status":"busy"}}`, UpdateStatusEvent{Status: StatusBusy}},
		{`{"type":"answer_call","data":{"call_id":"x"}}`, AnswerCallEvent{CallID: "x"}},
		{`{"type":"reject_call","data":{"call_id":"x"}}`, RejectCallEvent{CallID: "x"}},
		{`{"type":"end_call","data":{"call_id":"x"}}`, EndCallEvent{CallID: "x"}},
	}

	for _, tc := range cases {
		ev, err := DecodeInbound([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, ev, tc.raw)
	}
}

func TestDecodeInbound_IceCandidate(t *testing.T) {
	raw := []byte(`{"type":"ice_candidate","data":{"call_id":"x","candidate":{"sdpMid":"0"}}}`)

	ev, err := DecodeInbound(raw)
	require.NoError(t, err)

	iceEv, ok := ev.(IceCandidateEvent)
	require.True(t, ok)
	assert.Equal(t, "x", iceEv.CallID)
	assert.JSONEq(t, `{"sdpMid":"0"}`, string(iceEv.Candidate))
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"teleport"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeInbound_MalformedJSON(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestNewEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventUserTyping, TypingPayload{From: "alice", IsTyping: true})
	require.NoError(t, err)
	assert.Equal(t, EventUserTyping, env.Type)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))

	var payload TypingPayload
	require.NoError(t, json.Unmarshal(decoded.Data, &payload))
	assert.Equal(t, "alice", payload.From)
	assert.True(t, payload.IsTyping)
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := NewEnvelope(EventPong, nil)
	require.NoError(t, err)
	assert.Equal(t, EventPong, env.Type)
	assert.Empty(t, env.Data)
}
