package signal

import (
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/rs/zerolog/log"
)

const maxChatLen = 2000

func (ctl *SignalWSController) handleChat(sid core.SessionID, conn *WsSignalConn, m *wire.Message) {
	if m.Message == "" || len(m.Message) > maxChatLen {
		ctl.send(conn, wire.Errorf("invalid message"))
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sid) {
		ctl.send(conn, wire.Errorf("rate_limited"))
		return
	}
	if err := ctl.Orch.Chat(sid, m.Message, m.ParticipantName); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("chat dropped")
		ctl.send(conn, wire.Errorf("not in a room"))
	}
}
