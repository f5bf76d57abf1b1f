package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUserID(t *testing.T) {
	req := require.New(t)

	uid, err := ParseUserID("  alice ")
	req.NoError(err)
	req.Equal(UserID("alice"), uid)

	_, err = ParseUserID("   ")
	req.ErrorIs(err, ErrInvalidUserID)

	_, err = ParseUserID(strings.Repeat("x", MaxUserIDLen+1))
	req.ErrorIs(err, ErrInvalidUserID)
}

func TestEnvelope_Validate(t *testing.T) {
	offer, err := NewDescriptionEnvelope(EnvelopeCallRequest, "alice", "bob", SessionDescription{Type: "offer", SDP: "v=0"})
	require.NoError(t, err)
	cand, err := NewCandidateEnvelope("alice", "bob", ICECandidate{Candidate: "candidate:1"})
	require.NoError(t, err)

	cases := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"offer", offer, true},
		{"candidate", cand, true},
		{"end", NewControlEnvelope(EnvelopeEnd, "alice", "bob"), true},
		{"unknown type", Envelope{Type: "hello", From: "alice", To: "bob"}, false},
		{"missing to", Envelope{Type: EnvelopeEnd, From: "alice"}, false},
		{"bad sdp type", Envelope{Type: EnvelopeCallRequest, From: "alice", To: "bob", Payload: json.RawMessage(`{"type":"pranswer","sdp":"v=0"}`)}, false},
		{"payload not json", Envelope{Type: EnvelopeICECandidate, From: "alice", To: "bob", Payload: json.RawMessage(`nope`)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestEnvelope_PayloadRoundTrip(t *testing.T) {
	req := require.New(t)
	mid := "0"
	idx := uint16(0)

	env, err := NewCandidateEnvelope("alice", "bob", ICECandidate{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx})
	req.NoError(err)

	raw, err := json.Marshal(env)
	req.NoError(err)
	req.Contains(string(raw), `"sdpMid":"0"`)

	var back Envelope
	req.NoError(json.Unmarshal(raw, &back))
	c, err := back.Candidate()
	req.NoError(err)
	req.Equal("candidate:1", c.Candidate)
	req.Equal("0", *c.SDPMid)
}

func TestChatEvent_Validate(t *testing.T) {
	req := require.New(t)

	req.NoError(ChatEvent{Type: ChatMessage, To: "bob", Body: "hi"}.Validate())
	req.ErrorIs(ChatEvent{Type: ChatMessage, Body: "hi"}.Validate(), ErrInvalidEnvelope)
	req.ErrorIs(ChatEvent{Type: ChatMessage, To: "bob", Body: strings.Repeat("x", MaxChatBodyLen+1)}.Validate(), ErrInvalidEnvelope)
	req.True(ChatStopTyping.IsChat())
	req.False(ChatEventType("end").IsChat())
}
