package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const pliInterval = 3 * time.Second

var ErrHandleClosed = errors.New("negotiation handle closed")

// WebRTCConnection is one peer connection. Callbacks from pion are turned
// into core events; remote candidates arriving early are buffered until
// the remote description is applied.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	sid    core.SessionID
	sink   core.EventSink
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	streams map[string]*RemoteStream
	closed  bool

	closeOnce sync.Once
}

func newWebRTCConnection(pc *webrtc.PeerConnection, sid core.SessionID, sink core.EventSink) *WebRTCConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebRTCConnection{
		pc:      pc,
		sid:     sid,
		sink:    sink,
		ctx:     ctx,
		cancel:  cancel,
		streams: make(map[string]*RemoteStream),
	}
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.emit(core.NegotiationFailed{SID: c.sid, Reason: "peer connection failed"})
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.emit(core.LocalCandidate{SID: c.sid, Candidate: cand.ToJSON()})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.onTrack(track, receiver)
	})
}

func (c *WebRTCConnection) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	rs, existed := c.streams[track.StreamID()]
	if !existed {
		rs = newRemoteStream(track.StreamID())
		c.streams[track.StreamID()] = rs
	}
	c.mu.Unlock()

	rs.addTrack(c.ctx, track)
	go drainRTCP(c.ctx, receiver)
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go c.requestKeyframes(track)
	}
	if !existed {
		c.emit(core.RemoteStreamReady{SID: c.sid, Stream: rs})
	}
}

// requestKeyframes sends periodic PLIs so the remote encoder refreshes.
func (c *WebRTCConnection) requestKeyframes(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
			if err := c.pc.WriteRTCP(pli); err != nil {
				log.Debug().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("PLI write")
				return
			}
		}
	}
}

func drainRTCP(ctx context.Context, receiver *webrtc.RTPReceiver) {
	for ctx.Err() == nil {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) emit(ev core.Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.sink == nil {
		return
	}
	c.sink(ev)
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	c.flushPending()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	c.flushPending()
	return nil
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrHandleClosed
	}
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) flushPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("buffered candidate")
		}
	}
}

// AddLocalTrack attaches a local track to the PeerConnection.
func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go drainSenderRTCP(c.ctx, sender)
	return nil
}

func drainSenderRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Close releases the peer connection. Later calls are no-ops.
func (c *WebRTCConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.pending = nil
		c.mu.Unlock()

		c.cancel()
		if err = c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
			return
		}
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
	})
	return err
}
