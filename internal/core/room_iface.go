package core

import (
	"context"

	"github.com/dkeye/SignMeet/internal/domain"
)

// Membership is the room-membership collaborator. The server implements it
// in-process; the client reaches it over REST.
type Membership interface {
	CreateRoom(ctx context.Context, name string, capacity int) (*domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	JoinRoom(ctx context.Context, id domain.RoomID, name string) (*domain.Participant, error)
	// LeaveRoom frees the slot JoinRoom handed out.
	LeaveRoom(ctx context.Context, id domain.RoomID, pid domain.ParticipantID) error
}

type RoomInfo struct {
	ID               domain.RoomID   `json:"id"`
	Name             domain.RoomName `json:"name"`
	ParticipantCount int             `json:"participant_count"`
	Capacity         int             `json:"max_participants"`
}

// ClassifyRequest carries one downscaled frame as a base64 data URL.
type ClassifyRequest struct {
	ImageData     string               `json:"image_data"`
	RoomID        domain.RoomID        `json:"room_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

// Prediction is the classifier verdict. An empty Label means no result.
type Prediction struct {
	Label      string
	Confidence float64
}

func (p Prediction) Recognized() bool { return p.Label != "" }

type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (Prediction, error)
}

// Repositories used by the coordination server. Implementations return copies.
type RoomRepository interface {
	Save(room *domain.Room) error
	Get(id domain.RoomID) (*domain.Room, error)
	List() []*domain.Room
	// Update applies fn atomically to the stored room.
	Update(id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error)
}

type ParticipantRepository interface {
	Save(p *domain.Participant) error
	Get(id domain.ParticipantID) (*domain.Participant, error)
	Delete(id domain.ParticipantID)
}

type CaptionRepository interface {
	Append(c domain.Caption) error
	// Recent returns newest-first, at most CaptionRetention entries.
	Recent(room domain.RoomID) []domain.Caption
}
