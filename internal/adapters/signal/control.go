package signal

import "github.com/dkeye/SignMeet/internal/wire"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.send(conn, &wire.Message{Type: wire.TypePong})
}
