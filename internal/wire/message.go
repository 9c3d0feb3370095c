// Package wire defines the signaling envelope shared by the relay server and
// the participant client. Event names follow the browser client.
package wire

import (
	"time"

	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Client -> server.
const (
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypeSendMessage  = "send_message"
	TypePing         = "ping"
	TypeOffer        = "webrtc_offer"
	TypeAnswer       = "webrtc_answer"
	TypeICECandidate = "webrtc_ice_candidate"
)

// Server -> client. Offer/answer/candidate reuse the names above.
const (
	TypeWelcome           = "welcome"
	TypeUserJoined        = "user_joined"
	TypeUserLeft          = "user_left"
	TypeNewMessage        = "new_message"
	TypeNewCaption        = "new_caption"
	TypeParticipantJoined = "participant_joined"
	TypePong              = "pong"
	TypeError             = "error"
)

// Message is the flat envelope for every signaling frame.
// Fields irrelevant to Type stay empty and are omitted on the wire.
type Message struct {
	Type string `json:"type"`

	SID       string `json:"sid,omitempty"`
	TargetSID string `json:"target_sid,omitempty"`
	FromSID   string `json:"from_sid,omitempty"`

	RoomID          domain.RoomID        `json:"room_id,omitempty"`
	ParticipantID   domain.ParticipantID `json:"participant_id,omitempty"`
	ParticipantName string               `json:"participant_name,omitempty"`

	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	Message   string     `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	Caption     *domain.Caption     `json:"caption,omitempty"`
	Participant *domain.Participant `json:"participant,omitempty"`

	Error string `json:"error,omitempty"`
}

func Errorf(text string) *Message {
	return &Message{Type: TypeError, Error: text}
}
