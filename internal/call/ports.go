package call

import (
	"context"

	"github.com/dkeye/Tandem/internal/domain"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

type Constraints struct {
	Audio bool
	Video bool
}

// LocalTrack is one captured local track.
type LocalTrack interface {
	ID() string
	Kind() MediaKind
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// LocalStream groups the tracks of one acquisition. Stop stops every track.
type LocalStream interface {
	Tracks() []LocalTrack
	Stop()
}

// Media acquires local audio/video.
type Media interface {
	Acquire(ctx context.Context, c Constraints) (LocalStream, error)
}

type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerNew:
		return "new"
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	case PeerFailed:
		return "failed"
	case PeerClosed:
		return "closed"
	}
	return "unknown"
}

type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     MediaKind
}

// Negotiator is the peer negotiation resource of one session. Callbacks are
// installed before any description is created and may fire on any goroutine.
type Negotiator interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	// AcceptOffer applies the remote offer and returns the local answer.
	AcceptOffer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error)
	ApplyAnswer(ctx context.Context, answer domain.SessionDescription) error
	AddRemoteCandidate(c domain.ICECandidate) error

	OnLocalCandidate(func(domain.ICECandidate))
	OnStateChange(func(PeerState))
	OnRemoteTrack(func(RemoteTrack))

	Close() error
}

type NegotiatorFactory interface {
	NewNegotiator(stream LocalStream) (Negotiator, error)
}

// Signaler sends envelopes towards the relay. Delivery is best effort.
type Signaler interface {
	Send(env domain.Envelope) error
}
