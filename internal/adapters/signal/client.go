package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	clientPongWait   = 60 * time.Second
	clientPingPeriod = (clientPongWait * 9) / 10
)

// Dialer opens a signaling connection to the relay. It implements core.SignalDialer.
type Dialer struct {
	URL   string
	Codec wire.Codec
}

func (d *Dialer) Dial(ctx context.Context, sink core.EventSink) (core.SignalingChannel, error) {
	codec := d.Codec
	if codec == nil {
		codec = wire.JSON{}
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("codec", codec.Name())
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c := newClient(ws, codec, sink)
	go c.readPump()
	go c.writePump()
	log.Info().Str("module", "signal.client").Str("url", u.String()).Str("codec", codec.Name()).Msg("connected")
	return c, nil
}

// Client is the participant end of the signaling websocket. Outbound
// frames are queued without blocking; inbound frames become core events.
type Client struct {
	conn     *websocket.Conn
	codec    wire.Codec
	sink     core.EventSink
	outgoing chan *wire.Message
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newClient(ws *websocket.Conn, codec wire.Codec, sink core.EventSink) *Client {
	return &Client{
		conn:     ws,
		codec:    codec,
		sink:     sink,
		outgoing: make(chan *wire.Message, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) AnnouncePresence(room domain.RoomID, participant domain.ParticipantID) error {
	return c.send(&wire.Message{Type: wire.TypeJoinRoom, RoomID: room, ParticipantID: participant})
}

func (c *Client) AnnounceDeparture(room domain.RoomID) error {
	return c.send(&wire.Message{Type: wire.TypeLeaveRoom, RoomID: room})
}

func (c *Client) SendOffer(target core.SessionID, desc webrtc.SessionDescription) error {
	return c.send(&wire.Message{Type: wire.TypeOffer, TargetSID: string(target), Offer: &desc})
}

func (c *Client) SendAnswer(target core.SessionID, desc webrtc.SessionDescription) error {
	return c.send(&wire.Message{Type: wire.TypeAnswer, TargetSID: string(target), Answer: &desc})
}

func (c *Client) SendCandidate(target core.SessionID, cand webrtc.ICECandidateInit) error {
	return c.send(&wire.Message{Type: wire.TypeICECandidate, TargetSID: string(target), Candidate: &cand})
}

func (c *Client) SendChat(room domain.RoomID, text, author string) error {
	return c.send(&wire.Message{Type: wire.TypeSendMessage, RoomID: room, Message: text, ParticipantName: author})
}

func (c *Client) send(m *wire.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrSignalingClosed
	}
	select {
	case c.outgoing <- m:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Close flushes queued frames and closes the socket. No SignalingClosed
// event is emitted for a local close.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(defaultReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	})
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.sink(core.SignalingClosed{Err: fmt.Errorf("%w: %v", core.ErrSignalingClosed, err)})
			}
			return
		}
		var m wire.Message
		if err := c.codec.Decode(data, &m); err != nil {
			log.Warn().Err(err).Str("module", "signal.client").Msg("bad frame")
			continue
		}
		if ev := ToEvent(&m); ev != nil {
			c.sink(ev)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case m := <-c.outgoing:
			if err := c.write(m); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case m := <-c.outgoing:
			if err := c.write(m); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(m *wire.Message) error {
	data, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(c.codec.FrameType(), data)
}

// ToEvent maps an inbound frame to a controller event. Frames the
// controller does not consume map to nil.
func ToEvent(m *wire.Message) core.Event {
	switch m.Type {
	case wire.TypeWelcome:
		return core.Welcome{SID: core.SessionID(m.SID)}
	case wire.TypeUserJoined:
		return core.ParticipantJoined{SID: core.SessionID(m.SID), ParticipantID: m.ParticipantID}
	case wire.TypeUserLeft:
		return core.ParticipantLeft{SID: core.SessionID(m.SID)}
	case wire.TypeOffer:
		if m.Offer == nil {
			return nil
		}
		return core.OfferReceived{From: core.SessionID(m.FromSID), Description: *m.Offer}
	case wire.TypeAnswer:
		if m.Answer == nil {
			return nil
		}
		return core.AnswerReceived{From: core.SessionID(m.FromSID), Description: *m.Answer}
	case wire.TypeICECandidate:
		if m.Candidate == nil {
			return nil
		}
		return core.CandidateReceived{From: core.SessionID(m.FromSID), Candidate: *m.Candidate}
	case wire.TypeNewMessage:
		msg := domain.Message{Author: m.ParticipantName, Text: m.Message, FromSID: m.FromSID}
		if m.Timestamp != nil {
			msg.Timestamp = *m.Timestamp
		}
		return core.ChatReceived{Message: msg}
	case wire.TypeNewCaption:
		if m.Caption == nil {
			return nil
		}
		return core.CaptionReceived{Caption: *m.Caption}
	case wire.TypeError:
		return core.ServerError{Text: m.Error}
	}
	return nil
}
