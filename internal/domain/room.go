package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCapacity = 6
	MinCapacity     = 2
	MaxCapacity     = 12
	MaxRoomNameLen  = 64
)

type (
	RoomName string
	RoomID   string
)

func NewRoomID() RoomID { return RoomID(uuid.NewString()) }

// Room is the membership record owned by the coordination server.
// Capacity counts every participant, the local one included.
type Room struct {
	ID           RoomID          `json:"id"`
	Name         RoomName        `json:"name"`
	CreatedAt    time.Time       `json:"created_at"`
	Participants []ParticipantID `json:"participants"`
	Capacity     int             `json:"max_participants"`
}

// NewRoom validates the name and clamps capacity into [MinCapacity, MaxCapacity].
// Zero capacity means DefaultCapacity.
func NewRoom(name string, capacity int) (*Room, error) {
	if len(name) == 0 {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return nil, ErrRoomNameTooLong
	}
	switch {
	case capacity == 0:
		capacity = DefaultCapacity
	case capacity < MinCapacity:
		capacity = MinCapacity
	case capacity > MaxCapacity:
		capacity = MaxCapacity
	}
	return &Room{
		ID:           NewRoomID(),
		Name:         RoomName(name),
		CreatedAt:    time.Now().UTC(),
		Participants: []ParticipantID{},
		Capacity:     capacity,
	}, nil
}

func (r *Room) Full() bool { return len(r.Participants) >= r.Capacity }

// Clone returns a copy that shares nothing with r.
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = append([]ParticipantID(nil), r.Participants...)
	return &c
}
