package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type EnvelopeType string

const (
	EnvelopeCallRequest  EnvelopeType = "call-request"
	EnvelopeCallResponse EnvelopeType = "call-response"
	EnvelopeICECandidate EnvelopeType = "ice-candidate"
	EnvelopeEnd          EnvelopeType = "end"
	EnvelopeReject       EnvelopeType = "reject"
)

var ErrInvalidEnvelope = errors.New("invalid envelope")

var validate = validator.New(validator.WithRequiredStructEnabled())

// IsSignaling reports whether t names one of the five signaling envelope types.
func (t EnvelopeType) IsSignaling() bool {
	switch t {
	case EnvelopeCallRequest, EnvelopeCallResponse, EnvelopeICECandidate, EnvelopeEnd, EnvelopeReject:
		return true
	}
	return false
}

// Envelope is the transport-agnostic signaling message relayed between two
// identities. Payload is kept raw so the relay can forward it untouched.
type Envelope struct {
	Type    EnvelopeType    `json:"type" validate:"required,oneof=call-request call-response ice-candidate end reject"`
	From    UserID          `json:"from" validate:"required,max=64"`
	To      UserID          `json:"to" validate:"required,max=64"`
	Payload json.RawMessage `json:"payload"`
}

// SessionDescription is an offer or an answer.
type SessionDescription struct {
	Type string `json:"type" validate:"required,oneof=offer answer"`
	SDP  string `json:"sdp" validate:"required"`
}

// ICECandidate is a single trickled network-path candidate.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func NewDescriptionEnvelope(t EnvelopeType, from, to UserID, desc SessionDescription) (Envelope, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, From: from, To: to, Payload: raw}, nil
}

func NewCandidateEnvelope(from, to UserID, c ICECandidate) (Envelope, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: EnvelopeICECandidate, From: from, To: to, Payload: raw}, nil
}

// NewControlEnvelope builds an end or reject envelope, which carry no payload.
func NewControlEnvelope(t EnvelopeType, from, to UserID) Envelope {
	return Envelope{Type: t, From: from, To: to, Payload: json.RawMessage("null")}
}

// Validate checks the envelope shape and, for description and candidate
// envelopes, that the payload decodes.
func (e Envelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	switch e.Type {
	case EnvelopeCallRequest, EnvelopeCallResponse:
		if _, err := e.Description(); err != nil {
			return err
		}
	case EnvelopeICECandidate:
		if _, err := e.Candidate(); err != nil {
			return err
		}
	}
	return nil
}

func (e Envelope) Description() (SessionDescription, error) {
	var d SessionDescription
	if err := json.Unmarshal(e.Payload, &d); err != nil {
		return d, fmt.Errorf("%w: description: %v", ErrInvalidEnvelope, err)
	}
	if err := validate.Struct(d); err != nil {
		return d, fmt.Errorf("%w: description: %v", ErrInvalidEnvelope, err)
	}
	return d, nil
}

func (e Envelope) Candidate() (ICECandidate, error) {
	var c ICECandidate
	if err := json.Unmarshal(e.Payload, &c); err != nil {
		return c, fmt.Errorf("%w: candidate: %v", ErrInvalidEnvelope, err)
	}
	return c, nil
}
