package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRegister(
	ctx context.Context,
	conn *WsSignalConn,
	data []byte,
) {
	type registerPayload struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}
	var p registerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	uid, err := domain.ParseUserID(p.UserID)
	if err != nil {
		ctl.sendError(conn, "invalid_user_id")
		return
	}
	ctl.register(ctx, conn, uid)
}

// register binds the claimed identity to conn and confirms it. The claim is
// trusted; authentication happens before the socket is opened.
func (ctl *SignalWSController) register(ctx context.Context, conn *WsSignalConn, uid domain.UserID) {
	ctl.Registry.Register(context.WithoutCancel(ctx), uid, conn)
	resp := struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{
		Type:   "registered",
		UserID: uid,
	}
	ctl.sendJSON(conn, resp)
}
