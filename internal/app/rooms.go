package app

import (
	"context"
	"slices"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Rooms is the server-side room-membership collaborator. It is the only
// place where the hard capacity bound is enforced.
type Rooms struct {
	rooms           core.RoomRepository
	participants    core.ParticipantRepository
	defaultCapacity int
}

func NewRooms(rooms core.RoomRepository, participants core.ParticipantRepository, defaultCapacity int) *Rooms {
	if defaultCapacity <= 0 {
		defaultCapacity = domain.DefaultCapacity
	}
	return &Rooms{rooms: rooms, participants: participants, defaultCapacity: defaultCapacity}
}

var _ core.Membership = (*Rooms)(nil)

func (m *Rooms) CreateRoom(_ context.Context, name string, capacity int) (*domain.Room, error) {
	if capacity == 0 {
		capacity = m.defaultCapacity
	}
	room, err := domain.NewRoom(name, capacity)
	if err != nil {
		return nil, err
	}
	if err := m.rooms.Save(room); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Str("name", string(room.Name)).Int("capacity", room.Capacity).Msg("room created")
	return room, nil
}

func (m *Rooms) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	return m.rooms.Get(id)
}

func (m *Rooms) List() []core.RoomInfo {
	rooms := m.rooms.List()
	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, core.RoomInfo{
			ID:               r.ID,
			Name:             r.Name,
			ParticipantCount: len(r.Participants),
			Capacity:         r.Capacity,
		})
	}
	return out
}

func (m *Rooms) JoinRoom(_ context.Context, id domain.RoomID, name string) (*domain.Participant, error) {
	p, err := domain.NewParticipant(id, name)
	if err != nil {
		return nil, err
	}
	if _, err := m.rooms.Update(id, func(r *domain.Room) error {
		if r.Full() {
			return core.ErrRoomFull
		}
		r.Participants = append(r.Participants, p.ID)
		return nil
	}); err != nil {
		log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(id)).Msg("join rejected")
		return nil, err
	}
	if err := m.participants.Save(p); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("participant", string(p.ID)).Msg("participant joined")
	return p, nil
}

func (m *Rooms) Participant(id domain.ParticipantID) (*domain.Participant, error) {
	return m.participants.Get(id)
}

// LeaveRoom releases a participant that never announced itself over
// signaling, such as a client whose join was aborted.
func (m *Rooms) LeaveRoom(_ context.Context, id domain.RoomID, pid domain.ParticipantID) error {
	if _, err := m.rooms.Get(id); err != nil {
		return err
	}
	p, err := m.participants.Get(pid)
	if err != nil {
		return err
	}
	if p.RoomID != id {
		return core.ErrParticipantNotFound
	}
	m.Release(id, pid)
	return nil
}

// Release frees the participant's slot. Unknown ids are ignored.
func (m *Rooms) Release(room domain.RoomID, pid domain.ParticipantID) {
	if pid == "" {
		return
	}
	_, err := m.rooms.Update(room, func(r *domain.Room) error {
		r.Participants = slices.DeleteFunc(r.Participants, func(id domain.ParticipantID) bool { return id == pid })
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "app.rooms").Str("room", string(room)).Msg("release on missing room")
	}
	m.participants.Delete(pid)
	log.Info().Str("module", "app.rooms").Str("room", string(room)).Str("participant", string(pid)).Msg("participant released")
}
