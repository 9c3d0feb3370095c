package core

import (
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Event is a discrete input to the room session controller. Signaling reads,
// negotiation callbacks and timers never mutate state directly; they post events.
type Event interface {
	EventName() string
}

type EventSink func(Event)

// Inbound signaling events.
type (
	// Welcome reports the transport session id the server assigned to us.
	Welcome struct{ SID SessionID }

	ParticipantJoined struct {
		SID           SessionID
		ParticipantID domain.ParticipantID
	}

	ParticipantLeft struct{ SID SessionID }

	OfferReceived struct {
		From        SessionID
		Description webrtc.SessionDescription
	}

	AnswerReceived struct {
		From        SessionID
		Description webrtc.SessionDescription
	}

	CandidateReceived struct {
		From      SessionID
		Candidate webrtc.ICECandidateInit
	}

	ChatReceived    struct{ Message domain.Message }
	CaptionReceived struct{ Caption domain.Caption }

	// ServerError is an error frame sent by the relay; informational only.
	ServerError struct{ Text string }

	SignalingClosed struct{ Err error }
)

// Negotiation engine events.
type (
	LocalCandidate struct {
		SID       SessionID
		Candidate webrtc.ICECandidateInit
	}

	RemoteStreamReady struct {
		SID    SessionID
		Stream RemoteStream
	}

	NegotiationFailed struct {
		SID    SessionID
		Reason string
	}
)

func (Welcome) EventName() string           { return "welcome" }
func (ParticipantJoined) EventName() string { return "participant-joined" }
func (ParticipantLeft) EventName() string   { return "participant-left" }
func (OfferReceived) EventName() string     { return "offer-received" }
func (AnswerReceived) EventName() string    { return "answer-received" }
func (CandidateReceived) EventName() string { return "candidate-received" }
func (ChatReceived) EventName() string      { return "chat-received" }
func (CaptionReceived) EventName() string   { return "caption-received" }
func (ServerError) EventName() string       { return "server-error" }
func (SignalingClosed) EventName() string   { return "signaling-closed" }
func (LocalCandidate) EventName() string    { return "local-candidate" }
func (RemoteStreamReady) EventName() string { return "remote-stream-ready" }
func (NegotiationFailed) EventName() string { return "negotiation-failed" }
