package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Tandem/internal/call"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrForeignTrack = errors.New("rtc: track was not acquired by this package")

// Connection is a call.Negotiator over one pion PeerConnection.
type Connection struct {
	pc            *webrtc.PeerConnection
	gatherTimeout time.Duration
	log           zerolog.Logger

	mu        sync.Mutex
	onLocal   func(domain.ICECandidate)
	onState   func(call.PeerState)
	onTrack   func(call.RemoteTrack)
	closeOnce sync.Once
}

var _ call.Negotiator = (*Connection)(nil)

func newConnection(api *webrtc.API, opts Options, stream call.LocalStream) (*Connection, error) {
	pc, err := api.NewPeerConnection(opts.configuration())
	if err != nil {
		return nil, err
	}
	c := &Connection{
		pc:            pc,
		gatherTimeout: opts.GatherTimeout,
		log:           log.With().Str("module", "rtc").Str("pc", uuid.NewString()[:8]).Logger(),
	}

	if stream != nil {
		for _, t := range stream.Tracks() {
			lt, ok := t.(*localTrack)
			if !ok {
				_ = pc.Close()
				return nil, fmt.Errorf("%w: %s", ErrForeignTrack, t.ID())
			}
			sender, err := pc.AddTrack(lt.track)
			if err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add %s track: %w", lt.Kind(), err)
			}
			go drainRTCP(sender)
		}
	}

	c.start()
	return c, nil
}

func (c *Connection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(peerState(s))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onLocal
		c.mu.Unlock()
		if fn != nil {
			fn(fromInit(cand.ToJSON()))
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go drainTrack(track)

		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(call.RemoteTrack{ID: track.ID(), StreamID: track.StreamID(), Kind: call.MediaKind(track.Kind().String())})
		}
	})
}

func (c *Connection) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return c.setLocal(ctx, offer)
}

func (c *Connection) AcceptOffer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(toPion(offer)); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return c.setLocal(ctx, answer)
}

func (c *Connection) ApplyAnswer(_ context.Context, answer domain.SessionDescription) error {
	return c.pc.SetRemoteDescription(toPion(answer))
}

func (c *Connection) AddRemoteCandidate(cand domain.ICECandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

// setLocal applies desc and waits, bounded by the gather timeout, for the
// candidates to be folded into the local description.
func (c *Connection) setLocal(ctx context.Context, desc webrtc.SessionDescription) (domain.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return domain.SessionDescription{}, err
	}

	if c.gatherTimeout > 0 {
		timer := time.NewTimer(c.gatherTimeout)
		defer timer.Stop()
		select {
		case <-gatherComplete:
		case <-timer.C:
			c.log.Debug().Dur("timeout", c.gatherTimeout).Msg("gathering incomplete, trickling the rest")
		case <-ctx.Done():
			return domain.SessionDescription{}, ctx.Err()
		}
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return domain.SessionDescription{}, errors.New("rtc: no local description")
	}
	return domain.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (c *Connection) OnLocalCandidate(fn func(domain.ICECandidate)) {
	c.mu.Lock()
	c.onLocal = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(call.PeerState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) OnRemoteTrack(fn func(call.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		// callbacks fired while pion shuts down are not reported
		c.mu.Lock()
		c.onLocal, c.onState, c.onTrack = nil, nil, nil
		c.mu.Unlock()

		if err = c.pc.Close(); err != nil {
			c.log.Error().Err(err).Msg("close error")
		} else {
			c.log.Info().Msg("closed")
		}
	})
	return err
}

func peerState(s webrtc.PeerConnectionState) call.PeerState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return call.PeerConnecting
	case webrtc.PeerConnectionStateConnected:
		return call.PeerConnected
	case webrtc.PeerConnectionStateDisconnected:
		return call.PeerDisconnected
	case webrtc.PeerConnectionStateFailed:
		return call.PeerFailed
	case webrtc.PeerConnectionStateClosed:
		return call.PeerClosed
	}
	return call.PeerNew
}

func toPion(d domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

func fromInit(ci webrtc.ICECandidateInit) domain.ICECandidate {
	return domain.ICECandidate{
		Candidate:        ci.Candidate,
		SDPMid:           ci.SDPMid,
		SDPMLineIndex:    ci.SDPMLineIndex,
		UsernameFragment: ci.UsernameFragment,
	}
}

// drainRTCP keeps the interceptors fed; pion stalls senders whose RTCP is
// never read.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// drainTrack discards inbound media. The headless endpoint only observes
// that tracks arrive.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
