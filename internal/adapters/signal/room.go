package signal

import (
	"context"
	"errors"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, conn *WsSignalConn, m *wire.Message) {
	if m.RoomID == "" {
		ctl.send(conn, wire.Errorf("bad_payload"))
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(m.RoomID)).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, m.RoomID, m.ParticipantID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		if errors.Is(err, core.ErrRoomNotFound) {
			ctl.send(conn, wire.Errorf("room not found"))
			return
		}
		ctl.send(conn, wire.Errorf("join failed"))
	}
}

// handleLeave exits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
}
