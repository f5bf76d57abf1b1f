package call

import "fmt"

// State is the phase of the single call session of an endpoint.
type State int

const (
	Idle State = iota
	Acquiring
	Offering
	Ringing
	Answering
	Connecting
	Connected
	Ending
)

var stateNames = [...]string{
	Idle:       "idle",
	Acquiring:  "acquiring",
	Offering:   "offering",
	Ringing:    "ringing",
	Answering:  "answering",
	Connecting: "connecting",
	Connected:  "connected",
	Ending:     "ending",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

type Role int

const (
	RoleCaller Role = iota + 1
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	}
	return "none"
}

type trigger int

const (
	trigStart trigger = iota
	trigMediaReady
	trigOfferSent
	trigRemoteAnswer
	trigIncoming
	trigAccept
	trigAnswerSent
	trigPeerConnected
	trigReject
	trigTeardown
	trigReleased
)

var triggerNames = [...]string{
	trigStart:         "start",
	trigMediaReady:    "media-ready",
	trigOfferSent:     "offer-sent",
	trigRemoteAnswer:  "remote-answer",
	trigIncoming:      "incoming",
	trigAccept:        "accept",
	trigAnswerSent:    "answer-sent",
	trigPeerConnected: "peer-connected",
	trigReject:        "reject",
	trigTeardown:      "teardown",
	trigReleased:      "released",
}

func (t trigger) String() string { return triggerNames[t] }

// TransitionError reports a trigger that has no edge from the current state.
type TransitionError struct {
	From    State
	Trigger string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("call: no transition from %s on %s", e.From, e.Trigger)
}

// next is the transition table. It has no side effects.
func next(s State, t trigger) (State, error) {
	switch t {
	case trigStart:
		if s == Idle {
			return Acquiring, nil
		}
		return s, ErrConcurrentCall
	case trigMediaReady:
		if s == Acquiring {
			return Offering, nil
		}
	case trigOfferSent:
		if s == Offering {
			return Offering, nil
		}
	case trigRemoteAnswer:
		if s == Offering {
			return Connecting, nil
		}
	case trigIncoming:
		if s == Idle {
			return Ringing, nil
		}
		return s, ErrConcurrentCall
	case trigAccept:
		switch s {
		case Ringing:
			return Answering, nil
		case Idle:
			return s, ErrNoIncomingCall
		default:
			return s, ErrConcurrentCall
		}
	case trigAnswerSent:
		if s == Answering {
			return Connecting, nil
		}
	case trigPeerConnected:
		if s == Connecting {
			return Connected, nil
		}
	case trigReject:
		if s == Ringing {
			return Idle, nil
		}
		return s, ErrNoIncomingCall
	case trigTeardown:
		switch s {
		case Idle:
			return s, errAlreadyIdle
		case Ending:
			return Ending, nil
		default:
			return Ending, nil
		}
	case trigReleased:
		if s == Ending {
			return Idle, nil
		}
	}
	return s, &TransitionError{From: s, Trigger: t.String()}
}
