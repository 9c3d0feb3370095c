package app

import (
	"context"
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomID        domain.RoomID
	ParticipantID domain.ParticipantID
	Conn          core.SignalConnection
	Cancel        context.CancelFunc
}

// Registry maps live signaling connections to the room they announced.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetConn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomID == "" {
		return "", "", false
	}
	return entry.RoomID, entry.ParticipantID, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, room domain.RoomID, pid domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.RoomID = room
	entry.ParticipantID = pid
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("updated room")
	return true
}

// RemoveRoom clears the room association and reports what it was.
func (r *Registry) RemoveRoom(sid core.SessionID) (domain.RoomID, domain.ParticipantID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomID == "" {
		return "", "", false
	}
	room, pid := entry.RoomID, entry.ParticipantID
	entry.RoomID, entry.ParticipantID = "", ""
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("removed room association")
	return room, pid, true
}

type regSnap struct {
	SID           core.SessionID
	ParticipantID domain.ParticipantID
	Conn          core.SignalConnection
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.RoomID == room {
			out = append(out, regSnap{SID: sid, ParticipantID: e.ParticipantID, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
