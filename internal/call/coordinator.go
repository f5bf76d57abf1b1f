package call

import (
	"context"
	"sync"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Self        domain.UserID
	Media       Media
	Negotiators NegotiatorFactory
	Signaler    Signaler
	// Constraints defaults to audio and video.
	Constraints Constraints
}

// session holds everything that belongs to one call attempt. A session is
// only touched from the event loop; async steps capture the pointer and
// compare it to the current one before applying their result.
type session struct {
	remote domain.UserID
	role   Role

	ctx    context.Context
	cancel context.CancelFunc

	offer     domain.SessionDescription
	offerSent bool
	remoteSet bool
	pending   []domain.ICECandidate

	stream LocalStream
	neg    Negotiator
	tracks []RemoteTrack

	connectedEarly bool
	waiter         chan error
}

func (s *session) resolve(err error) {
	if s.waiter != nil {
		s.waiter <- err
		s.waiter = nil
	}
}

// Coordinator drives the call state machine of one endpoint. Every mutation
// runs on a single event loop goroutine; public methods post work to it.
type Coordinator struct {
	self        domain.UserID
	media       Media
	negotiators NegotiatorFactory
	sig         Signaler
	constraints Constraints
	log         zerolog.Logger

	queue   chan func()
	done    chan struct{}
	stopped chan struct{}

	postMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once

	events *broker

	// owned by the event loop
	state State
	sess  *session

	snapMu     sync.RWMutex
	snapState  State
	snapRemote domain.UserID
}

func New(cfg Config) *Coordinator {
	if cfg.Constraints == (Constraints{}) {
		cfg.Constraints = Constraints{Audio: true, Video: true}
	}
	c := &Coordinator{
		self:        cfg.Self,
		media:       cfg.Media,
		negotiators: cfg.Negotiators,
		sig:         cfg.Signaler,
		constraints: cfg.Constraints,
		log:         log.With().Str("module", "call").Str("self", cfg.Self.String()).Logger(),
		queue:       make(chan func(), 64),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		events:      newBroker(),
	}
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.queue:
			fn()
		case <-c.done:
			return
		}
	}
}

// post enqueues fn for the event loop. It returns false once the
// coordinator is closed.
func (c *Coordinator) post(fn func()) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.closed {
		return false
	}
	c.queue <- fn
	return true
}

// call runs fn on the event loop and waits for its result.
func (c *Coordinator) call(fn func() error) error {
	reply := make(chan error, 1)
	if !c.post(func() { reply <- fn() }) {
		return ErrClosed
	}
	return <-reply
}

func (c *Coordinator) State() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapState
}

// Remote is the bound remote user, empty when idle.
func (c *Coordinator) Remote() domain.UserID {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapRemote
}

func (c *Coordinator) Self() domain.UserID { return c.self }

// Subscribe returns a channel of events in the order they happened. The
// subscriber must drain it; cancel stops delivery.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// StartCall places an outgoing call. It returns once the offer has been
// sent, or with the error that aborted the attempt.
func (c *Coordinator) StartCall(ctx context.Context, remote domain.UserID) error {
	if remote == "" || remote == c.self {
		return ErrInvalidRemote
	}
	var (
		s      *session
		waiter chan error
	)
	err := c.call(func() error {
		if _, err := next(c.state, trigStart); err != nil {
			return err
		}
		s = c.newSession(remote, RoleCaller)
		s.waiter = make(chan error, 1)
		waiter = s.waiter
		c.move(trigStart)
		c.log.Info().Str("remote", remote.String()).Msg("starting call")
		go c.acquire(s)
		return nil
	})
	if err != nil {
		return err
	}
	return c.await(ctx, s, waiter)
}

// AcceptCall answers the ringing call. It returns once the answer has been
// sent, or with the error that aborted the attempt.
func (c *Coordinator) AcceptCall(ctx context.Context) error {
	var (
		s      *session
		waiter chan error
	)
	err := c.call(func() error {
		if _, err := next(c.state, trigAccept); err != nil {
			return err
		}
		s = c.sess
		s.waiter = make(chan error, 1)
		waiter = s.waiter
		c.move(trigAccept)
		c.log.Info().Str("remote", s.remote.String()).Msg("accepting call")
		go c.acquire(s)
		return nil
	})
	if err != nil {
		return err
	}
	return c.await(ctx, s, waiter)
}

// RejectCall declines the ringing call and notifies the caller.
func (c *Coordinator) RejectCall() error {
	return c.call(func() error {
		if _, err := next(c.state, trigReject); err != nil {
			return err
		}
		s := c.sess
		s.cancel()
		c.send(domain.NewControlEnvelope(domain.EnvelopeReject, c.self, s.remote))
		c.sess = nil
		c.move(trigReject)
		c.log.Info().Str("remote", s.remote.String()).Msg("call rejected")
		c.events.publish(Event{Kind: EventCallEnded, State: Idle, Remote: s.remote, Err: ErrCallRejected})
		return nil
	})
}

// EndCall tears down the current session. It is a no-op when idle.
func (c *Coordinator) EndCall() {
	_ = c.call(func() error {
		c.teardown(true, nil)
		return nil
	})
}

// ToggleVideo flips the local video tracks and returns the new flag. It
// returns false when there is no local media.
func (c *Coordinator) ToggleVideo() bool { return c.toggle(KindVideo) }

func (c *Coordinator) ToggleAudio() bool { return c.toggle(KindAudio) }

func (c *Coordinator) toggle(kind MediaKind) bool {
	var enabled bool
	_ = c.call(func() error {
		s := c.sess
		if s == nil || s.stream == nil {
			return nil
		}
		for _, t := range s.stream.Tracks() {
			if t.Kind() != kind {
				continue
			}
			t.SetEnabled(!t.Enabled())
			enabled = t.Enabled()
		}
		return nil
	})
	return enabled
}

// HandleEnvelope feeds an envelope received from the relay into the state
// machine. It does not wait for it to be processed.
func (c *Coordinator) HandleEnvelope(env domain.Envelope) {
	if !c.post(func() { c.onEnvelope(env) }) {
		c.log.Debug().Str("type", string(env.Type)).Msg("envelope after close")
	}
}

// Close ends any session, stops the event loop and closes subscriber
// channels.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.postMu.Lock()
		c.closed = true
		c.postMu.Unlock()

		close(c.done)
		<-c.stopped

		// The loop is gone; this goroutine owns the state from here on.
		for drained := false; !drained; {
			select {
			case fn := <-c.queue:
				fn()
			default:
				drained = true
			}
		}
		c.teardown(true, ErrClosed)
		c.events.close()
	})
}

func (c *Coordinator) await(ctx context.Context, s *session, waiter chan error) error {
	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
	}
	_ = c.call(func() error {
		if c.sess == s && s.waiter != nil {
			c.teardown(true, ctx.Err())
		}
		return nil
	})
	return <-waiter
}

func (c *Coordinator) newSession(remote domain.UserID, role Role) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{remote: remote, role: role, ctx: ctx, cancel: cancel}
	c.sess = s
	return s
}

// move applies t and publishes the new state. Illegal edges here are
// programming errors and only logged.
func (c *Coordinator) move(t trigger) {
	to, err := next(c.state, t)
	if err != nil {
		c.log.Error().Err(err).Msg("transition")
		return
	}
	if to == c.state {
		return
	}
	from := c.state
	c.state = to

	var remote domain.UserID
	if c.sess != nil {
		remote = c.sess.remote
	}
	c.snapMu.Lock()
	c.snapState = to
	c.snapRemote = remote
	c.snapMu.Unlock()

	c.log.Debug().Str("from", from.String()).Str("to", to.String()).Str("trigger", t.String()).Msg("state")
	c.events.publish(Event{Kind: EventStateChanged, State: to, Remote: remote})
}

func (c *Coordinator) send(env domain.Envelope) {
	if err := c.sig.Send(env); err != nil {
		c.log.Warn().Err(err).Str("type", string(env.Type)).Str("to", env.To.String()).Msg("send failed")
	}
}

func (c *Coordinator) fail(err error) {
	c.log.Warn().Err(err).Msg("call failed")
	c.teardown(true, err)
}

// teardown releases the session and returns to Idle. The remote is sent an
// end only when the teardown started here.
func (c *Coordinator) teardown(local bool, cause error) {
	s := c.sess
	if s == nil {
		return
	}
	c.move(trigTeardown)
	s.cancel()

	if s.neg != nil {
		if err := s.neg.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close negotiator")
		}
		s.neg = nil
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	s.tracks = nil
	s.pending = nil

	// A failed attempt the remote never heard of ends silently; an explicit
	// hangup always tells the bound remote.
	notified := s.role == RoleCallee || s.offerSent
	if local && s.remote != "" && (notified || cause == nil) {
		c.send(domain.NewControlEnvelope(domain.EnvelopeEnd, c.self, s.remote))
	}

	waitErr := cause
	if waitErr == nil {
		waitErr = ErrCallCancelled
	}
	s.resolve(waitErr)

	c.sess = nil
	c.move(trigReleased)
	c.log.Info().Str("remote", s.remote.String()).Bool("local", local).AnErr("cause", cause).Msg("call ended")
	c.events.publish(Event{Kind: EventCallEnded, State: Idle, Remote: s.remote, Err: cause})
}

func (c *Coordinator) acquire(s *session) {
	stream, err := c.media.Acquire(s.ctx, c.constraints)
	if !c.post(func() { c.onMedia(s, stream, err) }) && stream != nil {
		stream.Stop()
	}
}

func (c *Coordinator) onMedia(s *session, stream LocalStream, err error) {
	if c.sess != s {
		if stream != nil {
			stream.Stop()
		}
		return
	}
	if err != nil {
		c.fail(asMediaError(err))
		return
	}
	s.stream = stream

	neg, err := c.negotiators.NewNegotiator(stream)
	if err != nil {
		c.fail(&NegotiationError{Step: StepCreate, Err: err})
		return
	}
	s.neg = neg
	c.bind(s, neg)

	if s.role == RoleCaller {
		c.move(trigMediaReady)
		go c.createOffer(s, neg)
		return
	}
	go c.acceptOffer(s, neg, s.offer)
}

func (c *Coordinator) bind(s *session, neg Negotiator) {
	neg.OnLocalCandidate(func(cand domain.ICECandidate) {
		c.post(func() {
			if c.sess != s {
				return
			}
			env, err := domain.NewCandidateEnvelope(c.self, s.remote, cand)
			if err != nil {
				c.log.Warn().Err(err).Msg("encode candidate")
				return
			}
			c.send(env)
		})
	})
	neg.OnStateChange(func(ps PeerState) {
		c.post(func() {
			if c.sess == s {
				c.onPeerState(s, ps)
			}
		})
	})
	neg.OnRemoteTrack(func(t RemoteTrack) {
		c.post(func() {
			if c.sess != s {
				return
			}
			s.tracks = append(s.tracks, t)
			track := t
			c.events.publish(Event{Kind: EventRemoteTrack, State: c.state, Remote: s.remote, Track: &track})
		})
	})
}

func (c *Coordinator) onPeerState(s *session, ps PeerState) {
	c.log.Debug().Str("peer", ps.String()).Str("state", c.state.String()).Msg("peer state")
	switch ps {
	case PeerConnected:
		switch c.state {
		case Connecting:
			c.move(trigPeerConnected)
		case Answering:
			s.connectedEarly = true
		}
	case PeerDisconnected, PeerFailed, PeerClosed:
		c.fail(ErrConnectionLost)
	}
}

func (c *Coordinator) createOffer(s *session, neg Negotiator) {
	offer, err := neg.CreateOffer(s.ctx)
	c.post(func() {
		if c.sess != s {
			return
		}
		if err != nil {
			c.fail(&NegotiationError{Step: StepOffer, Err: err})
			return
		}
		env, err := domain.NewDescriptionEnvelope(domain.EnvelopeCallRequest, c.self, s.remote, offer)
		if err == nil {
			err = c.sig.Send(env)
		}
		if err != nil {
			c.fail(&NegotiationError{Step: StepSignal, Err: err})
			return
		}
		s.offerSent = true
		c.move(trigOfferSent)
		s.resolve(nil)
	})
}

func (c *Coordinator) acceptOffer(s *session, neg Negotiator, offer domain.SessionDescription) {
	answer, err := neg.AcceptOffer(s.ctx, offer)
	c.post(func() {
		if c.sess != s {
			return
		}
		if err != nil {
			c.fail(&NegotiationError{Step: StepAnswer, Err: err})
			return
		}
		s.remoteSet = true
		c.flushCandidates(s)

		env, err := domain.NewDescriptionEnvelope(domain.EnvelopeCallResponse, c.self, s.remote, answer)
		if err == nil {
			err = c.sig.Send(env)
		}
		if err != nil {
			c.fail(&NegotiationError{Step: StepSignal, Err: err})
			return
		}
		c.move(trigAnswerSent)
		s.resolve(nil)
		if s.connectedEarly {
			c.move(trigPeerConnected)
		}
	})
}

func (c *Coordinator) applyAnswer(s *session, neg Negotiator, answer domain.SessionDescription) {
	err := neg.ApplyAnswer(s.ctx, answer)
	c.post(func() {
		if c.sess != s {
			return
		}
		if err != nil {
			c.fail(&NegotiationError{Step: StepRemote, Err: err})
			return
		}
		s.remoteSet = true
		c.flushCandidates(s)
	})
}

func (c *Coordinator) flushCandidates(s *session) {
	for _, cand := range s.pending {
		if err := s.neg.AddRemoteCandidate(cand); err != nil {
			c.log.Warn().Err(err).Msg("add remote candidate")
		}
	}
	s.pending = nil
}

func (c *Coordinator) onEnvelope(env domain.Envelope) {
	if env.To != "" && env.To != c.self {
		c.log.Debug().Str("type", string(env.Type)).Str("to", env.To.String()).Msg("envelope for another user")
		return
	}
	switch env.Type {
	case domain.EnvelopeCallRequest:
		c.onCallRequest(env)
	case domain.EnvelopeCallResponse:
		c.onCallResponse(env)
	case domain.EnvelopeICECandidate:
		c.onRemoteCandidate(env)
	case domain.EnvelopeEnd, domain.EnvelopeReject:
		s := c.sess
		if s == nil || env.From != s.remote {
			c.log.Debug().Str("type", string(env.Type)).Str("from", env.From.String()).Msg("ignored")
			return
		}
		cause := ErrRemoteEnded
		if env.Type == domain.EnvelopeReject {
			cause = ErrCallRejected
		}
		c.teardown(false, cause)
	default:
		c.log.Debug().Str("type", string(env.Type)).Msg("unknown envelope")
	}
}

func (c *Coordinator) onCallRequest(env domain.Envelope) {
	offer, err := env.Description()
	if err != nil || offer.Type != "offer" || env.From == "" {
		c.log.Debug().Err(err).Str("from", env.From.String()).Msg("malformed call-request")
		return
	}
	if c.state != Idle {
		if c.sess != nil && c.sess.remote == env.From {
			c.log.Debug().Str("from", env.From.String()).Msg("duplicate call-request")
			return
		}
		c.log.Info().Str("from", env.From.String()).Str("state", c.state.String()).Msg("busy, rejecting")
		c.send(domain.NewControlEnvelope(domain.EnvelopeReject, c.self, env.From))
		return
	}
	s := c.newSession(env.From, RoleCallee)
	s.offer = offer
	c.move(trigIncoming)
	c.log.Info().Str("from", env.From.String()).Msg("incoming call")
	c.events.publish(Event{Kind: EventIncomingCall, State: Ringing, Remote: env.From})
}

func (c *Coordinator) onCallResponse(env domain.Envelope) {
	s := c.sess
	if s == nil || s.role != RoleCaller || env.From != s.remote || c.state != Offering || !s.offerSent {
		c.log.Debug().Str("from", env.From.String()).Str("state", c.state.String()).Msg("unexpected call-response")
		return
	}
	answer, err := env.Description()
	if err != nil || answer.Type != "answer" {
		c.log.Debug().Err(err).Msg("malformed call-response")
		return
	}
	c.move(trigRemoteAnswer)
	go c.applyAnswer(s, s.neg, answer)
}

func (c *Coordinator) onRemoteCandidate(env domain.Envelope) {
	s := c.sess
	if s == nil || s.neg == nil || env.From != s.remote {
		c.log.Debug().Str("from", env.From.String()).Str("state", c.state.String()).Msg("candidate dropped")
		return
	}
	cand, err := env.Candidate()
	if err != nil {
		c.log.Debug().Err(err).Msg("malformed candidate")
		return
	}
	if !s.remoteSet {
		s.pending = append(s.pending, cand)
		return
	}
	if err := s.neg.AddRemoteCandidate(cand); err != nil {
		c.log.Warn().Err(err).Msg("add remote candidate")
	}
}
