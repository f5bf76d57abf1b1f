package call

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentCall rejects StartCall/AcceptCall on a busy endpoint.
	ErrConcurrentCall = errors.New("call: endpoint already busy")
	ErrNoIncomingCall = errors.New("call: no incoming call")
	ErrCallCancelled  = errors.New("call: cancelled")
	ErrCallRejected   = errors.New("call: rejected by remote")
	ErrRemoteEnded    = errors.New("call: ended by remote")
	ErrInvalidRemote  = errors.New("call: invalid remote user")
	ErrClosed         = errors.New("call: coordinator closed")
	// ErrConnectionLost is the cause when the peer connection reports
	// failed, disconnected or closed.
	ErrConnectionLost = errors.New("call: peer connection lost")

	errAlreadyIdle = errors.New("call: already idle")
)

type MediaReason int

const (
	MediaUnknown MediaReason = iota
	MediaPermissionDenied
	MediaNoDevice
	MediaInsecureContext
)

func (r MediaReason) String() string {
	switch r {
	case MediaPermissionDenied:
		return "permission denied"
	case MediaNoDevice:
		return "no device"
	case MediaInsecureContext:
		return "insecure context"
	}
	return "unknown"
}

// MediaAccessError is returned when local audio/video could not be acquired.
type MediaAccessError struct {
	Reason MediaReason
	Err    error
}

func (e *MediaAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media access: %s: %v", e.Reason, e.Err)
	}
	return "media access: " + e.Reason.String()
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

type NegotiationStep string

const (
	StepCreate NegotiationStep = "create"
	StepOffer  NegotiationStep = "offer"
	StepAnswer NegotiationStep = "answer"
	StepRemote NegotiationStep = "remote-description"
	StepSignal NegotiationStep = "signal"
)

// NegotiationError wraps a failure of one offer/answer step.
type NegotiationError struct {
	Step NegotiationStep
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation %s: %v", e.Step, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

func asMediaError(err error) error {
	var me *MediaAccessError
	if errors.As(err, &me) {
		return me
	}
	return &MediaAccessError{Reason: MediaUnknown, Err: err}
}
