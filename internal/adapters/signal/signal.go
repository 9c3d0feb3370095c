// Package signal is the WebSocket signaling transport: the relay controller
// used by the server and the dialing client used by participants.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/SignMeet/internal/app"
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer       = 64
	writeWait        = 5 * time.Second
	defaultReadLimit = 64 * 1024
	defaultPing      = 54 * time.Second
)

var ErrConnClosed = errors.New("connection closed")

type SignalWSController struct {
	Orch       *app.Orchestrator
	Limiter    *RoomRateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(orch *app.Orchestrator, limiter *RoomRateLimiter) *SignalWSController {
	return &SignalWSController{
		Orch:       orch,
		Limiter:    limiter,
		ReadLimit:  defaultReadLimit,
		PingPeriod: defaultPing,
	}
}

// WsSignalConn implements core.SignalConnection over one websocket.
type WsSignalConn struct {
	conn  *websocket.Conn
	codec wire.Codec
	send  chan *wire.Message

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, codec wire.Codec) *WsSignalConn {
	return &WsSignalConn{
		conn:  ws,
		codec: codec,
		send:  make(chan *wire.Message, sendBuffer),
	}
}

func (c *WsSignalConn) TrySend(m *wire.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- m:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection pumps.
// Each connection gets a fresh transport session id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	codec, err := wire.CodecByName(c.Query("codec"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := core.NewSessionID()
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("codec", codec.Name()).Msg("new WS connection")

	conn := newWsSignalConn(ws, codec)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(sid, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
