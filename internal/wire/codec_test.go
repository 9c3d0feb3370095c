package wire

import (
	"testing"
	"time"

	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

func TestCodecByName(t *testing.T) {
	for name, frame := range map[string]int{"": websocket.TextMessage, "json": websocket.TextMessage, "msgpack": websocket.BinaryMessage} {
		c, err := CodecByName(name)
		if err != nil || c.FrameType() != frame {
			t.Fatalf("CodecByName(%q) = %v, %v", name, c, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Fatal("unknown codec accepted")
	}
}

// SDP types marshal as strings; both codecs must carry them intact.
func TestCodecsCarryNegotiationPayloads(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mid := "0"
	in := &Message{
		Type:      TypeAnswer,
		FromSID:   "peer",
		Answer:    &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"},
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid},
		Timestamp: &ts,
		Caption:   &domain.Caption{Text: "hello", Confidence: 0.8},
	}
	for _, c := range []Codec{JSON{}, Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			var out Message
			if err := c.Decode(b, &out); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.Answer == nil || out.Answer.Type != webrtc.SDPTypeAnswer || out.Answer.SDP != in.Answer.SDP {
				t.Fatalf("answer = %+v", out.Answer)
			}
			if out.Candidate == nil || *out.Candidate.SDPMid != "0" || !out.Timestamp.Equal(ts) {
				t.Fatalf("candidate/timestamp lost: %+v", out)
			}
			if out.Offer != nil || out.Caption.Text != "hello" {
				t.Fatalf("unexpected fields: %+v", out)
			}
		})
	}
}

func TestJSONUsesWireNames(t *testing.T) {
	b, err := JSON{}.Encode(&Message{Type: TypeJoinRoom, RoomID: "r1", ParticipantID: "p1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"join_room","room_id":"r1","participant_id":"p1"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}
