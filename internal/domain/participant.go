// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 36
	MaxNameLen          = 36
)

var (
	ErrNameTooLong     = errors.New("name too long")
	ErrNameEmpty       = errors.New("name empty")
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type ParticipantID string

type Participant struct {
	ID       ParticipantID `json:"id"`
	Name     string        `json:"name"`
	RoomID   RoomID        `json:"room_id"`
	JoinedAt time.Time     `json:"joined_at"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(roomID RoomID, name string) (*Participant, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Participant{
		ID:       ParticipantID(uuid.NewString()),
		Name:     name,
		RoomID:   roomID,
		JoinedAt: time.Now().UTC(),
	}, nil
}

func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
