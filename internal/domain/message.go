package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat line as delivered by the signaling relay.
type Message struct {
	Author    string    `json:"participant_name"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	FromSID   string    `json:"from_sid,omitempty"`
}

// Caption is a recognized sign label attributed to a participant.
type Caption struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	ParticipantName string    `json:"participant_name"`
	RoomID          RoomID    `json:"room_id"`
	Timestamp       time.Time `json:"timestamp"`
	Confidence      float64   `json:"confidence"`
}

func NewCaption(roomID RoomID, author, label string, confidence float64) Caption {
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return Caption{
		ID:              uuid.NewString(),
		Text:            label,
		ParticipantName: author,
		RoomID:          roomID,
		Timestamp:       time.Now().UTC(),
		Confidence:      confidence,
	}
}
