package signal

import (
	"encoding/json"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
)

// identity returns the user registered on conn, replying with an error frame
// when there is none.
func (ctl *SignalWSController) identity(conn *WsSignalConn) (domain.UserID, bool) {
	uid, ok := ctl.Registry.IdentityOf(conn.ID())
	if !ok {
		ctl.sendError(conn, "not_registered")
	}
	return uid, ok
}

func (ctl *SignalWSController) handleEnvelope(conn *WsSignalConn, data []byte) {
	uid, ok := ctl.identity(conn)
	if !ok {
		return
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	switch env.From {
	case "":
		env.From = uid
	case uid:
	default:
		log.Warn().Str("module", "signal").Str("user", uid.String()).Str("from", env.From.String()).Msg("sender mismatch")
		ctl.sendError(conn, "from_mismatch")
		return
	}
	if err := env.Validate(); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("type", string(env.Type)).Msg("invalid envelope")
		ctl.sendError(conn, "invalid_envelope")
		return
	}
	// delivery failures stay on the server side
	ctl.Relay.Relay(env)
}

func (ctl *SignalWSController) handleChat(conn *WsSignalConn, data []byte) {
	uid, ok := ctl.identity(conn)
	if !ok {
		return
	}
	var ev domain.ChatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ev.From = uid
	if err := ev.Validate(); err != nil {
		ctl.sendError(conn, "invalid_chat")
		return
	}
	out := ctl.Relay.Forward(ev.To, ev)
	log.Debug().Str("module", "signal").Str("type", string(ev.Type)).Str("from", uid.String()).Str("to", ev.To.String()).Str("outcome", out.String()).Msg("chat")
}
