package call_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Tandem/internal/call"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id      string
	kind    call.MediaKind
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() call.MediaKind    { return t.kind }
func (t *fakeTrack) Enabled() bool           { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *fakeTrack) Stop()                   { t.stopped.Store(true) }

type fakeStream struct {
	tracks []*fakeTrack
}

func newFakeStream() *fakeStream {
	audio := &fakeTrack{id: "audio", kind: call.KindAudio}
	video := &fakeTrack{id: "video", kind: call.KindVideo}
	audio.enabled.Store(true)
	video.enabled.Store(true)
	return &fakeStream{tracks: []*fakeTrack{audio, video}}
}

func (s *fakeStream) Tracks() []call.LocalTrack {
	out := make([]call.LocalTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

func (s *fakeStream) stopped() bool {
	for _, t := range s.tracks {
		if !t.stopped.Load() {
			return false
		}
	}
	return true
}

// fakeMedia hands out fake streams. When gate is set Acquire waits for it,
// ignoring cancellation, so stale results can be observed.
type fakeMedia struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	streams []*fakeStream
}

func (m *fakeMedia) Acquire(_ context.Context, _ call.Constraints) (call.LocalStream, error) {
	m.mu.Lock()
	gate, err := m.gate, m.err
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	s := newFakeStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *fakeMedia) all() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.streams...)
}

type fakeNegotiator struct {
	mu sync.Mutex

	offerErr  error
	answerErr error
	applyErr  error
	// connectOnAccept fires PeerConnected before AcceptOffer returns.
	connectOnAccept bool
	// connectOnApply fires PeerConnected once the answer is applied.
	connectOnApply bool

	onCandidate func(domain.ICECandidate)
	onState     func(call.PeerState)
	onTrack     func(call.RemoteTrack)

	remoteDesc *domain.SessionDescription
	remote     []domain.ICECandidate
	closed     bool
}

func (n *fakeNegotiator) CreateOffer(context.Context) (domain.SessionDescription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offerErr != nil {
		return domain.SessionDescription{}, n.offerErr
	}
	return domain.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (n *fakeNegotiator) AcceptOffer(_ context.Context, offer domain.SessionDescription) (domain.SessionDescription, error) {
	n.mu.Lock()
	if n.answerErr != nil {
		n.mu.Unlock()
		return domain.SessionDescription{}, n.answerErr
	}
	n.remoteDesc = &offer
	connect, fire := n.connectOnAccept, n.onState
	n.mu.Unlock()
	if connect && fire != nil {
		fire(call.PeerConnected)
	}
	return domain.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (n *fakeNegotiator) ApplyAnswer(_ context.Context, answer domain.SessionDescription) error {
	n.mu.Lock()
	if n.applyErr != nil {
		n.mu.Unlock()
		return n.applyErr
	}
	n.remoteDesc = &answer
	connect, fire := n.connectOnApply, n.onState
	n.mu.Unlock()
	if connect && fire != nil {
		fire(call.PeerConnected)
	}
	return nil
}

func (n *fakeNegotiator) AddRemoteCandidate(c domain.ICECandidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.remoteDesc == nil {
		return errors.New("remote description not set")
	}
	n.remote = append(n.remote, c)
	return nil
}

func (n *fakeNegotiator) OnLocalCandidate(f func(domain.ICECandidate)) {
	n.mu.Lock()
	n.onCandidate = f
	n.mu.Unlock()
}

func (n *fakeNegotiator) OnStateChange(f func(call.PeerState)) {
	n.mu.Lock()
	n.onState = f
	n.mu.Unlock()
}

func (n *fakeNegotiator) OnRemoteTrack(f func(call.RemoteTrack)) {
	n.mu.Lock()
	n.onTrack = f
	n.mu.Unlock()
}

func (n *fakeNegotiator) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	return nil
}

func (n *fakeNegotiator) fireState(s call.PeerState) {
	n.mu.Lock()
	f := n.onState
	n.mu.Unlock()
	f(s)
}

func (n *fakeNegotiator) fireCandidate(c domain.ICECandidate) {
	n.mu.Lock()
	f := n.onCandidate
	n.mu.Unlock()
	f(c)
}

func (n *fakeNegotiator) fireTrack(t call.RemoteTrack) {
	n.mu.Lock()
	f := n.onTrack
	n.mu.Unlock()
	f(t)
}

func (n *fakeNegotiator) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *fakeNegotiator) remoteCandidates() []domain.ICECandidate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.ICECandidate(nil), n.remote...)
}

// fakeFactory builds negotiators from a template.
type fakeFactory struct {
	mu        sync.Mutex
	template  fakeNegotiator
	err       error
	created   []*fakeNegotiator
	createdCh chan *fakeNegotiator
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{createdCh: make(chan *fakeNegotiator, 8)}
}

func (f *fakeFactory) NewNegotiator(call.LocalStream) (call.Negotiator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := &fakeNegotiator{
		offerErr:        f.template.offerErr,
		answerErr:       f.template.answerErr,
		applyErr:        f.template.applyErr,
		connectOnAccept: f.template.connectOnAccept,
		connectOnApply:  f.template.connectOnApply,
	}
	f.created = append(f.created, n)
	f.createdCh <- n
	return n, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeNegotiator {
	select {
	case n := <-f.createdCh:
		return n
	case <-time.After(time.Second):
		require.FailNow(t, "no negotiator created")
		return nil
	}
}

// recorder is a Signaler that keeps every envelope.
type recorder struct {
	mu   sync.Mutex
	sent []domain.Envelope
}

func (r *recorder) Send(env domain.Envelope) error {
	r.mu.Lock()
	r.sent = append(r.sent, env)
	r.mu.Unlock()
	return nil
}

func (r *recorder) envelopes() []domain.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Envelope(nil), r.sent...)
}

func (r *recorder) ofType(t domain.EnvelopeType) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range r.envelopes() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func waitState(t *testing.T, c *call.Coordinator, want call.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, time.Second, 5*time.Millisecond,
		"state is %s, want %s", c.State(), want)
}

func nextEvent(t *testing.T, events <-chan call.Event, kind call.EventKind) call.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed")
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			require.FailNow(t, "no event", kind.String())
		}
	}
}

func offerFrom(from, to domain.UserID) domain.Envelope {
	env, _ := domain.NewDescriptionEnvelope(domain.EnvelopeCallRequest, from, to,
		domain.SessionDescription{Type: "offer", SDP: "v=0 remote offer"})
	return env
}

func answerFrom(from, to domain.UserID) domain.Envelope {
	env, _ := domain.NewDescriptionEnvelope(domain.EnvelopeCallResponse, from, to,
		domain.SessionDescription{Type: "answer", SDP: "v=0 remote answer"})
	return env
}

func candidateFrom(from, to domain.UserID, cand string) domain.Envelope {
	env, _ := domain.NewCandidateEnvelope(from, to, domain.ICECandidate{Candidate: cand})
	return env
}
