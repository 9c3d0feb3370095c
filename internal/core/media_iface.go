package core

import (
	"context"
	"image"

	"github.com/pion/webrtc/v4"
)

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// NegotiationEngine allocates one NegotiationHandle per remote transport session.
// local may be nil: the handle must then negotiate a receive-only session.
// Asynchronous outcomes (local candidates, remote media, failure) are posted to sink.
type NegotiationEngine interface {
	NewHandle(sid SessionID, role Role, local LocalStream, sink EventSink) (NegotiationHandle, error)
}

// NegotiationHandle is one peer connection attempt. It is owned by exactly one
// peer session and released exactly once with Close.
type NegotiationHandle interface {
	// CreateOffer produces and applies the local offer (initiator side).
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the applied local answer.
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate may be called before the remote description is known.
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

type LocalTrack interface {
	Kind() webrtc.RTPCodecType
	Enabled() bool
	// SetEnabled mutes the track in place without renegotiation.
	SetEnabled(bool)
	TrackLocal() webrtc.TrackLocal
}

// LocalStream is the camera/microphone capture shared by every outbound session.
type LocalStream interface {
	Tracks() []LocalTrack
	// Snapshot returns the current video frame or ErrNoFrame.
	Snapshot() (image.Image, error)
	Stop()
}

type MediaSource interface {
	// Acquire fails with ErrMediaAccessDenied when capture is unavailable.
	Acquire(ctx context.Context) (LocalStream, error)
}

type RemoteStream interface {
	StreamID() string
	Kinds() []webrtc.RTPCodecType
}
