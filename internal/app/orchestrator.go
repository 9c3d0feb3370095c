package app

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInRoom       = errors.New("not in a room")
	ErrTargetNotFound  = errors.New("target session not found")
	ErrTargetElsewhere = errors.New("target session is in another room")

	// ErrForeignParticipant rejects a join whose participant id was issued
	// for a different room.
	ErrForeignParticipant = errors.New("participant registered in another room")
)

// PublishResult reports delivery stats/backpressure of one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []core.SessionID
}

// Orchestrator routes signaling between connections. It never touches the
// media plane: peers negotiate directly with each other.
type Orchestrator struct {
	Registry *Registry
	Rooms    *Rooms
	Captions *Captions
	Policy   Policy
}

// Connect registers a new connection and greets it with its session id.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.BindSignal(sid, conn, cancel)
	_ = conn.TrySend(&wire.Message{Type: wire.TypeWelcome, SID: string(sid)})
}

// Join enters sid into a room and tells everybody else. pid must have been
// issued for room by the REST join, or be empty for a slotless session.
// Re-joining another room (or as another participant) first leaves the
// previous one; repeating the current join only re-announces it.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, room domain.RoomID, pid domain.ParticipantID) error {
	if _, err := o.Rooms.GetRoom(ctx, room); err != nil {
		return err
	}
	if pid != "" {
		p, err := o.Rooms.Participant(pid)
		if err != nil {
			return err
		}
		if p.RoomID != room {
			return ErrForeignParticipant
		}
	}
	prev, prevPid, ok := o.Registry.RoomOf(sid)
	switch {
	case ok && prev == room && prevPid == pid:
		log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(room)).Msg("repeated join")
	case ok:
		o.Leave(sid)
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("left previous room")
		fallthrough
	default:
		if !o.Registry.UpdateRoom(sid, room, pid) {
			return ErrTargetNotFound
		}
	}
	o.broadcast(room, sid, &wire.Message{
		Type:          wire.TypeUserJoined,
		SID:           string(sid),
		ParticipantID: pid,
	})
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(room)).Msg("joined signaling room")
	return nil
}

// Leave removes sid from its room, frees the membership slot and tells the
// rest of the room. No-op when sid is not in a room.
func (o *Orchestrator) Leave(sid core.SessionID) {
	room, pid, ok := o.Registry.RemoveRoom(sid)
	if !ok {
		return
	}
	o.Rooms.Release(room, pid)
	o.broadcast(room, sid, &wire.Message{Type: wire.TypeUserLeft, SID: string(sid)})
}

// LeaveParticipant frees pid's slot through REST. A signaling session still
// bound to pid leaves the room as well, so the others are told.
func (o *Orchestrator) LeaveParticipant(ctx context.Context, room domain.RoomID, pid domain.ParticipantID) error {
	for _, snap := range o.Registry.MembersOfRoom(room) {
		if pid != "" && snap.ParticipantID == pid {
			o.Leave(snap.SID)
			return nil
		}
	}
	return o.Rooms.LeaveRoom(ctx, room, pid)
}

// Relay forwards an offer, answer or candidate to msg.TargetSID, stamped with
// the sender. Both ends must share a room.
func (o *Orchestrator) Relay(from core.SessionID, msg *wire.Message) error {
	room, _, ok := o.Registry.RoomOf(from)
	if !ok {
		return ErrNotInRoom
	}
	target := core.SessionID(msg.TargetSID)
	conn, ok := o.Registry.GetConn(target)
	if !ok {
		return ErrTargetNotFound
	}
	if targetRoom, _, ok := o.Registry.RoomOf(target); !ok || targetRoom != room {
		return ErrTargetElsewhere
	}
	out := &wire.Message{
		Type:      msg.Type,
		FromSID:   string(from),
		Offer:     msg.Offer,
		Answer:    msg.Answer,
		Candidate: msg.Candidate,
	}
	if err := conn.TrySend(out); err != nil {
		o.applyPolicy(room, []core.SessionID{target})
		return err
	}
	log.Debug().Str("module", "app.orch").Str("type", msg.Type).Str("from", string(from)).Str("to", string(target)).Msg("relayed")
	return nil
}

// Chat broadcasts a chat line to the whole room, sender included.
func (o *Orchestrator) Chat(from core.SessionID, text, author string) error {
	room, _, ok := o.Registry.RoomOf(from)
	if !ok {
		return ErrNotInRoom
	}
	now := time.Now().UTC()
	o.broadcast(room, "", &wire.Message{
		Type:            wire.TypeNewMessage,
		Message:         text,
		ParticipantName: author,
		Timestamp:       &now,
		FromSID:         string(from),
	})
	return nil
}

// AnnounceParticipant tells a room that somebody registered through REST.
func (o *Orchestrator) AnnounceParticipant(p *domain.Participant) {
	o.broadcast(p.RoomID, "", &wire.Message{
		Type:        wire.TypeParticipantJoined,
		RoomID:      p.RoomID,
		Participant: p,
	})
}

// Predict runs the caption pipeline and broadcasts accepted captions.
func (o *Orchestrator) Predict(ctx context.Context, req core.ClassifyRequest) (core.Prediction, error) {
	pred, caption, err := o.Captions.Predict(ctx, req)
	if err != nil {
		return pred, err
	}
	if caption != nil {
		o.broadcast(caption.RoomID, "", &wire.Message{Type: wire.TypeNewCaption, Caption: caption})
	}
	return pred, nil
}

func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Leave(sid)
	o.Registry.Unbind(sid)
}

// Kick cancels the connection; its pumps exit and OnDisconnect follows.
func (o *Orchestrator) Kick(sid core.SessionID) {
	if conn, ok := o.Registry.GetConn(sid); ok {
		o.Registry.Cancel(sid)
		conn.Close()
	}
}

func (o *Orchestrator) broadcast(room domain.RoomID, except core.SessionID, msg *wire.Message) PublishResult {
	res := PublishResult{}
	for _, snap := range o.Registry.MembersOfRoom(room) {
		if snap.SID == except {
			continue
		}
		if err := snap.Conn.TrySend(msg); err != nil {
			res.Dropped = append(res.Dropped, snap.SID)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.orch").Str("type", msg.Type).Str("room", string(room)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	o.applyPolicy(room, res.Dropped)
	return res
}

func (o *Orchestrator) applyPolicy(room domain.RoomID, dropped []core.SessionID) {
	if o.Policy == nil {
		return
	}
	for _, sid := range dropped {
		switch o.Policy.OnBackPressure(room, sid) {
		case KickMember:
			log.Warn().Str("module", "app.orch").Str("sid", string(sid)).Msg("kicking slow member")
			o.Kick(sid)
		case MarkSlow, DropFrame, NoAction:
		}
	}
}
