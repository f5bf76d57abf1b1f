package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrTransportUnavailable means the recipient has no live connection. It is
// recorded in the Outcome and never reported back to the sender.
var ErrTransportUnavailable = errors.New("transport unavailable")

type Outcome int

const (
	Delivered Outcome = iota
	DroppedOffline
	DroppedBackpressure
	DroppedInvalid
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case DroppedOffline:
		return "dropped_offline"
	case DroppedBackpressure:
		return "dropped_backpressure"
	case DroppedInvalid:
		return "dropped_invalid"
	}
	return "unknown"
}

// Err maps a drop outcome to the error taxonomy; nil when delivered.
func (o Outcome) Err() error {
	if o == DroppedOffline {
		return ErrTransportUnavailable
	}
	return nil
}

// Relay forwards signaling envelopes and chat events to the connection that
// currently owns the recipient identity. It never blocks and never retries.
type Relay struct {
	Registry Resolver
	Policy   Policy
}

func NewRelay(reg Resolver, policy Policy) *Relay {
	return &Relay{Registry: reg, Policy: policy}
}

// Relay delivers env verbatim to env.To.
func (r *Relay) Relay(env domain.Envelope) Outcome {
	out := r.Forward(env.To, env)
	ev := log.Debug()
	if out != Delivered {
		ev = log.Info()
	}
	ev.Str("module", "app.relay").
		Str("type", string(env.Type)).
		Str("from", env.From.String()).
		Str("to", env.To.String()).
		Str("outcome", out.String()).
		Msg("relay")
	return out
}

// Forward encodes v and hands it to the connection bound to `to`.
func (r *Relay) Forward(to domain.UserID, v any) Outcome {
	conn, ok := r.Registry.Resolve(to)
	if !ok {
		return DroppedOffline
	}
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal")
		return DroppedInvalid
	}
	if err := conn.TrySend(frame); err != nil {
		action := NoAction
		if r.Policy != nil {
			action = r.Policy.OnBackPressure(conn)
		}
		if action == KickConnection {
			log.Warn().Err(err).Str("module", "app.relay").Str("to", to.String()).Str("conn", string(conn.ID())).Msg("kicking slow connection")
			conn.Close()
		}
		return DroppedBackpressure
	}
	return Delivered
}
