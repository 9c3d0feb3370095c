// Package mesh runs the participant side of a full-mesh call: the peer
// registry, the room session state machine and the frame sampler.
package mesh

import (
	"sync"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/rs/zerolog/log"
)

// PeerSession is one negotiated (or negotiating) connection to a remote
// transport session.
type PeerSession struct {
	SID           core.SessionID
	Role          core.Role
	Handle        core.NegotiationHandle
	Stream        core.RemoteStream
	ParticipantID domain.ParticipantID
	Stalled       bool
	CreatedAt     time.Time
}

// PeerInfo is a read-only view of a PeerSession for rendering.
type PeerInfo struct {
	SID           core.SessionID
	Role          core.Role
	ParticipantID domain.ParticipantID
	StreamID      string
	HasStream     bool
	Stream        core.RemoteStream
	Stalled       bool
	CreatedAt     time.Time
}

// Registry owns the peer sessions of one room session. It is mutated only
// by the Controller; readers get snapshots.
type Registry struct {
	mu       sync.RWMutex
	engine   core.NegotiationEngine
	sink     core.EventSink
	sessions map[core.SessionID]*PeerSession
}

func NewRegistry(engine core.NegotiationEngine, sink core.EventSink) *Registry {
	return &Registry{
		engine:   engine,
		sink:     sink,
		sessions: make(map[core.SessionID]*PeerSession),
	}
}

// CreateSession allocates a negotiation handle for sid. An existing entry
// must be removed first. local may be nil for a receive-only session.
func (r *Registry) CreateSession(sid core.SessionID, role core.Role, local core.LocalStream) (*PeerSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sid]; ok {
		return nil, core.NewOpError("create session", core.ErrDuplicateSession)
	}
	h, err := r.engine.NewHandle(sid, role, local, r.sink)
	if err != nil {
		return nil, core.NewOpError("create session", err)
	}
	ps := &PeerSession{
		SID:       sid,
		Role:      role,
		Handle:    h,
		CreatedAt: time.Now(),
	}
	r.sessions[sid] = ps
	log.Debug().Str("module", "mesh.registry").Str("sid", string(sid)).Str("role", role.String()).Msg("session created")
	return ps, nil
}

// AttachRemoteStream reports false when sid is unknown; the late stream is dropped.
func (r *Registry) AttachRemoteStream(sid core.SessionID, stream core.RemoteStream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.sessions[sid]
	if !ok {
		log.Warn().Err(core.ErrLateEvent).Str("module", "mesh.registry").Str("sid", string(sid)).Msg("stream for unknown session")
		return false
	}
	ps.Stream = stream
	ps.Stalled = false
	return true
}

// RemoveSession releases the handle and forgets sid. Unknown ids are a no-op.
func (r *Registry) RemoveSession(sid core.SessionID) bool {
	r.mu.Lock()
	ps, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	release(ps)
	return true
}

// RemoveAll releases every handle and returns how many were released.
func (r *Registry) RemoveAll() int {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[core.SessionID]*PeerSession)
	r.mu.Unlock()

	for _, ps := range all {
		release(ps)
	}
	return len(all)
}

func release(ps *PeerSession) {
	if err := ps.Handle.Close(); err != nil {
		log.Warn().Err(err).Str("module", "mesh.registry").Str("sid", string(ps.SID)).Msg("handle close")
	}
	log.Debug().Str("module", "mesh.registry").Str("sid", string(ps.SID)).Msg("session removed")
}

// SetParticipant records which participant a session belongs to, when known.
func (r *Registry) SetParticipant(sid core.SessionID, pid domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok := r.sessions[sid]; ok {
		ps.ParticipantID = pid
	}
}

// MarkStalled flags a session that still has no remote stream. The handle
// guards against marking a session recreated since the deadline was armed.
func (r *Registry) MarkStalled(sid core.SessionID, h core.NegotiationHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.sessions[sid]
	if !ok || ps.Handle != h || ps.Stream != nil {
		return false
	}
	ps.Stalled = true
	return true
}

func (r *Registry) Session(sid core.SessionID) (*PeerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ps, ok := r.sessions[sid]
	return ps, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ListSessions returns a snapshot; order is unspecified.
func (r *Registry) ListSessions() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerInfo, 0, len(r.sessions))
	for _, ps := range r.sessions {
		info := PeerInfo{
			SID:           ps.SID,
			Role:          ps.Role,
			ParticipantID: ps.ParticipantID,
			Stalled:       ps.Stalled,
			CreatedAt:     ps.CreatedAt,
		}
		if ps.Stream != nil {
			info.HasStream = true
			info.StreamID = ps.Stream.StreamID()
			info.Stream = ps.Stream
		}
		out = append(out, info)
	}
	return out
}
