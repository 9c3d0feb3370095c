package signal

import (
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRelay(sid core.SessionID, conn *WsSignalConn, m *wire.Message) {
	if m.TargetSID == "" {
		ctl.send(conn, wire.Errorf("missing target_sid"))
		return
	}
	if !validRelay(m) {
		log.Error().Str("module", "signal").Str("sid", string(sid)).Str("type", m.Type).Msg("bad relay payload")
		ctl.send(conn, wire.Errorf("bad_payload"))
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("relay rate limited")
		ctl.send(conn, wire.Errorf("rate_limited"))
		return
	}
	if err := ctl.Orch.Relay(sid, m); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("target", m.TargetSID).Msg("relay failed")
	}
}

func validRelay(m *wire.Message) bool {
	switch m.Type {
	case wire.TypeOffer:
		return m.Offer != nil && m.Offer.SDP != ""
	case wire.TypeAnswer:
		return m.Answer != nil && m.Answer.SDP != ""
	case wire.TypeICECandidate:
		return m.Candidate != nil
	}
	return false
}
