package rtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TrackStats counts inbound RTP for one remote track.
type TrackStats struct {
	Kind     webrtc.RTPCodecType
	Packets  uint64
	Bytes    uint64
	LastSeq  uint16
	LastSeen time.Time
}

type trackCounter struct {
	kind     webrtc.RTPCodecType
	packets  atomic.Uint64
	bytes    atomic.Uint64
	lastSeq  atomic.Uint32
	lastSeen atomic.Int64
}

// RemoteStream implements core.RemoteStream for the tracks of one remote
// media stream. Each track is read in its own loop.
type RemoteStream struct {
	id string

	mu     sync.RWMutex
	tracks map[string]*trackCounter
}

func newRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id, tracks: make(map[string]*trackCounter)}
}

func (s *RemoteStream) StreamID() string { return s.id }

func (s *RemoteStream) Kinds() []webrtc.RTPCodecType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]webrtc.RTPCodecType, 0, len(s.tracks))
	for _, tc := range s.tracks {
		out = append(out, tc.kind)
	}
	return out
}

// Stats returns per-track counters keyed by track id.
func (s *RemoteStream) Stats() map[string]TrackStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]TrackStats, len(s.tracks))
	for id, tc := range s.tracks {
		out[id] = TrackStats{
			Kind:     tc.kind,
			Packets:  tc.packets.Load(),
			Bytes:    tc.bytes.Load(),
			LastSeq:  uint16(tc.lastSeq.Load()),
			LastSeen: time.Unix(0, tc.lastSeen.Load()),
		}
	}
	return out
}

func (s *RemoteStream) addTrack(ctx context.Context, track *webrtc.TrackRemote) {
	tc := &trackCounter{kind: track.Kind()}
	s.mu.Lock()
	s.tracks[track.ID()] = tc
	s.mu.Unlock()
	go tc.loop(ctx, track)
}

// loop reads RTP packets from the remote track until it ends.
func (tc *trackCounter) loop(ctx context.Context, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("track_id", track.ID()).Msg("remote track ended")
			return
		}
		tc.count(pkt)
	}
}

func (tc *trackCounter) count(pkt *rtp.Packet) {
	tc.packets.Add(1)
	tc.bytes.Add(uint64(len(pkt.Payload)))
	tc.lastSeq.Store(uint32(pkt.SequenceNumber))
	tc.lastSeen.Store(time.Now().UnixNano())
}
