package signal

import (
	"context"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case m, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			data, err := c.codec.Encode(m)
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("type", m.Type).Msg("writePump encode")
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(sid)
		}
		cancel()
		c.Close()
	}()

	pongWait := ctl.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var m wire.Message
	if err := c.codec.Decode(data, &m); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		ctl.send(c, wire.Errorf("bad_payload"))
		return
	}

	switch m.Type {
	case wire.TypeJoinRoom:
		ctl.handleJoin(ctx, sid, c, &m)
	case wire.TypeLeaveRoom:
		ctl.handleLeave(sid)
	case wire.TypePing:
		ctl.handlePing(c)
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeICECandidate:
		ctl.handleRelay(sid, c, &m)
	case wire.TypeSendMessage:
		ctl.handleChat(sid, c, &m)
	default:
		log.Warn().Str("module", "signal").Str("type", m.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) send(c core.SignalConnection, m *wire.Message) {
	if err := c.TrySend(m); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", m.Type).Msg("send dropped")
	}
}
