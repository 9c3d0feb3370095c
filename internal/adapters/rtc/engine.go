// Package rtc is the pion-backed negotiation engine.
package rtc

import (
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig(stun ...string) webrtc.Configuration {
	if len(stun) == 0 {
		stun = []string{DefaultSTUN}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: stun,
			},
		},
	}
}

// Engine implements core.NegotiationEngine on top of a shared pion API.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewEngine(cfg webrtc.Configuration) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir))
	return &Engine{api: api, config: cfg}, nil
}

// NewHandle creates a peer connection for sid. Without local media the
// connection only receives.
func (e *Engine) NewHandle(sid core.SessionID, role core.Role, local core.LocalStream, sink core.EventSink) (core.NegotiationHandle, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, err
	}
	c := newWebRTCConnection(pc, sid, sink)

	have := map[webrtc.RTPCodecType]bool{}
	if local != nil {
		for _, t := range local.Tracks() {
			tl := t.TrackLocal()
			if tl == nil {
				continue
			}
			if err := c.AddLocalTrack(tl); err != nil {
				c.Close()
				return nil, err
			}
			have[t.Kind()] = true
		}
	}
	if role == core.RoleInitiator {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if have[kind] {
				continue
			}
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				c.Close()
				return nil, err
			}
		}
	}

	c.start()
	log.Info().Str("module", "webrtc").Str("sid", string(sid)).Str("role", role.String()).Int("tracks", len(have)).Msg("handle created")
	return c, nil
}
