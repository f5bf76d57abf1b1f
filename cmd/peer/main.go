// Command peer is a headless calling endpoint: it registers with the relay,
// places or answers one call at a time and logs what happens.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/adapters/rtc"
	"github.com/dkeye/Tandem/internal/adapters/wsclient"
	"github.com/dkeye/Tandem/internal/call"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.SetupLogging()

	cfg, err := config.LoadPeer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load peer config")
	}
	config.ApplyLevel(cfg.LogLevel)

	self, err := domain.ParseUserID(cfg.UserID)
	if err != nil {
		log.Fatal().Err(err).Msg("bad user_id")
	}

	client, err := wsclient.Dial(ctx, cfg.ServerURL, self)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.ServerURL).Msg("failed to reach relay")
	}
	defer client.Close()

	factory, err := rtc.NewFactory(rtc.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build webrtc api")
	}

	coord := call.New(call.Config{
		Self:        self,
		Media:       rtc.Media{},
		Negotiators: factory,
		Signaler:    client,
		Constraints: call.Constraints{Audio: cfg.Audio, Video: cfg.Video},
	})
	defer coord.Close()

	events, unsubscribe := coord.Subscribe()
	defer unsubscribe()
	go watch(ctx, coord, events, cfg.AutoAccept)

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx, coord) }()

	if cfg.Call != "" {
		remote, err := domain.ParseUserID(cfg.Call)
		if err != nil {
			log.Fatal().Err(err).Msg("bad call target")
		}
		go func() {
			if err := coord.StartCall(ctx, remote); err != nil {
				log.Error().Err(err).Str("remote", remote.String()).Msg("call failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("relay connection lost")
		}
	}
	coord.EndCall()
	log.Info().Msg("Peer exited")
}

func watch(ctx context.Context, coord *call.Coordinator, events <-chan call.Event, autoAccept bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l := log.Info().Str("module", "peer").Str("event", ev.Kind.String()).Str("state", ev.State.String()).Str("remote", ev.Remote.String())
			if ev.Track != nil {
				l = l.Str("track", ev.Track.ID).Str("kind", string(ev.Track.Kind))
			}
			l.AnErr("cause", ev.Err).Msg("call event")

			if ev.Kind != call.EventIncomingCall {
				continue
			}
			if !autoAccept {
				if err := coord.RejectCall(); err != nil {
					log.Warn().Err(err).Str("module", "peer").Msg("reject")
				}
				continue
			}
			go func() {
				if err := coord.AcceptCall(ctx); err != nil {
					log.Error().Err(err).Str("module", "peer").Msg("accept failed")
				}
			}()
		}
	}
}
