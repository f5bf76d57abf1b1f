package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Tandem/internal/call"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var ErrNoMedia = errors.New("rtc: neither audio nor video requested")

// Media hands out sample-fed local tracks. There is no capture device behind
// them; a caller that has media writes it with WriteSample.
type Media struct{}

var _ call.Media = Media{}

func (Media) Acquire(ctx context.Context, c call.Constraints) (call.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, &call.MediaAccessError{Reason: call.MediaNoDevice, Err: ErrNoMedia}
	}

	streamID := "tandem-" + uuid.NewString()[:8]
	s := &localStream{}
	if c.Audio {
		t, err := newLocalTrack(call.KindAudio, webrtc.MimeTypeOpus, streamID)
		if err != nil {
			return nil, &call.MediaAccessError{Reason: call.MediaUnknown, Err: err}
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t, err := newLocalTrack(call.KindVideo, webrtc.MimeTypeVP8, streamID)
		if err != nil {
			return nil, &call.MediaAccessError{Reason: call.MediaUnknown, Err: err}
		}
		s.tracks = append(s.tracks, t)
	}
	log.Debug().Str("module", "rtc").Str("stream", streamID).Bool("audio", c.Audio).Bool("video", c.Video).Msg("local stream acquired")
	return s, nil
}

type localStream struct {
	tracks []*localTrack
}

func (s *localStream) Tracks() []call.LocalTrack {
	return lo.Map(s.tracks, func(t *localTrack, _ int) call.LocalTrack { return t })
}

func (s *localStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

type localTrack struct {
	kind  call.MediaKind
	track *webrtc.TrackLocalStaticSample

	mu      sync.RWMutex
	enabled bool
	stopped bool
}

func newLocalTrack(kind call.MediaKind, mime, streamID string) (*localTrack, error) {
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, string(kind), streamID)
	if err != nil {
		return nil, err
	}
	return &localTrack{kind: kind, track: tr, enabled: true}, nil
}

func (t *localTrack) ID() string           { return t.track.ID() }
func (t *localTrack) Kind() call.MediaKind { return t.kind }

func (t *localTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled && !t.stopped
}

func (t *localTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *localTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// WriteSample forwards s to the peer. Samples written while the track is
// disabled or stopped are dropped.
func (t *localTrack) WriteSample(s media.Sample) error {
	if !t.Enabled() {
		return nil
	}
	return t.track.WriteSample(s)
}
