package core

import (
	"context"

	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/pion/webrtc/v4"
)

// SignalConnection is the server-side handle of one connected client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend must not block; it fails with a backpressure error instead.
	TrySend(*wire.Message) error
	Close()
}

// SignalingChannel is the client-side outbound half of the signaling transport.
// Inbound traffic is delivered as Events to the sink given to SignalDialer.Dial.
// Implementations must not block the caller on network I/O.
type SignalingChannel interface {
	AnnouncePresence(room domain.RoomID, participant domain.ParticipantID) error
	AnnounceDeparture(room domain.RoomID) error
	SendOffer(target SessionID, desc webrtc.SessionDescription) error
	SendAnswer(target SessionID, desc webrtc.SessionDescription) error
	SendCandidate(target SessionID, cand webrtc.ICECandidateInit) error
	SendChat(room domain.RoomID, text, author string) error
	Close()
}

type SignalDialer interface {
	Dial(ctx context.Context, sink EventSink) (SignalingChannel, error)
}
