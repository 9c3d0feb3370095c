package mesh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/pion/webrtc/v4"
)

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func TestJoinReachesActive(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := h.ctl.State(); got != StateActive {
		t.Fatalf("state = %s, want active", got)
	}
	if len(h.signal.presence) != 1 || h.signal.presence[0] != "room-1" {
		t.Fatalf("presence not announced: %v", h.signal.presence)
	}
	if p := h.ctl.LocalParticipant(); p == nil || p.Name != "alice" {
		t.Fatalf("local participant = %+v", p)
	}
	if err := h.join(); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("second Join = %v, want ErrAlreadyJoined", err)
	}
	if len(h.member.released) != 0 {
		t.Fatalf("active session released its slot: %v", h.member.released)
	}
}

func TestJoinUnknownRoomFails(t *testing.T) {
	h := newHarness(true)
	err := h.ctl.Join(context.Background(), "missing", "alice")
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("Join = %v, want ErrRoomNotFound", err)
	}
	if h.ctl.State() != StateJoinFailed {
		t.Fatalf("state = %s, want join-failed", h.ctl.State())
	}
	select {
	case <-h.ctl.Done():
	default:
		t.Fatal("Done not closed after failed join")
	}
	if len(h.member.released) != 0 {
		t.Fatalf("released %v without holding a slot", h.member.released)
	}
}

func TestJoinDialFailureReleasesMedia(t *testing.T) {
	h := newHarness(true)
	h.dialer.err = errors.New("refused")
	if err := h.join(); err == nil {
		t.Fatal("expected dial error")
	}
	if h.stream.stops != 1 {
		t.Fatalf("local stream stops = %d, want 1", h.stream.stops)
	}
	if len(h.member.released) != 1 || h.member.released[0] != "me" {
		t.Fatalf("released slots = %v, want [me]", h.member.released)
	}
}

func TestMediaDeniedDoesNotInitiate(t *testing.T) {
	h := newHarness(false)
	if err := h.join(); err != nil {
		t.Fatalf("Join must tolerate media failure: %v", err)
	}
	if h.ctl.State() != StateActive {
		t.Fatalf("state = %s, want active", h.ctl.State())
	}
	if h.ctl.Local().Stream != nil {
		t.Fatal("chat-only session must have no local stream")
	}

	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1", ParticipantID: "p1"})

	if n := len(h.signal.sentOf("offer")); n != 0 {
		t.Fatalf("chat-only participant sent %d offers", n)
	}
	if h.engine.created() != 0 {
		t.Fatalf("chat-only participant created %d sessions", h.engine.created())
	}
}

func TestChatOnlyStillResponds(t *testing.T) {
	h := newHarness(false)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.OfferReceived{From: "peer-1", Description: offer("x")})

	answers := h.signal.sentOf("answer")
	if len(answers) != 1 || answers[0].target != "peer-1" {
		t.Fatalf("answers = %+v", answers)
	}
	if h.engine.handles[0].local != nil {
		t.Fatal("chat-only responder must negotiate receive-only")
	}
}

func TestRemoteJoinInitiatesOffer(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1", ParticipantID: "p1"})

	offers := h.signal.sentOf("offer")
	if len(offers) != 1 || offers[0].target != "peer-1" {
		t.Fatalf("offers = %+v", offers)
	}
	peers := h.ctl.Peers()
	if len(peers) != 1 || peers[0].Role != core.RoleInitiator || peers[0].ParticipantID != "p1" {
		t.Fatalf("peers = %+v", peers)
	}
}

func TestOwnJoinEchoIgnored(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.Welcome{SID: "self"})
	h.ctl.Dispatch(core.ParticipantJoined{SID: "self", ParticipantID: "me"})
	if h.engine.created() != 0 {
		t.Fatal("controller negotiated with itself")
	}
	if h.ctl.LocalSID() != "self" {
		t.Fatalf("LocalSID = %q", h.ctl.LocalSID())
	}
}

func TestOfferCreatesResponder(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.OfferReceived{From: "abc123", Description: offer("remote")})

	peers := h.ctl.Peers()
	if len(peers) != 1 || peers[0].SID != "abc123" || peers[0].Role != core.RoleResponder {
		t.Fatalf("peers = %+v", peers)
	}
	answers := h.signal.sentOf("answer")
	if len(answers) != 1 || answers[0].target != "abc123" || answers[0].desc.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestReOfferRecreatesSession(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.OfferReceived{From: "abc", Description: offer("1")})
	h.ctl.Dispatch(core.OfferReceived{From: "abc", Description: offer("2")})

	if got := len(h.ctl.Peers()); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
	if h.engine.created() != 2 || h.engine.closed() != 1 {
		t.Fatalf("created=%d closed=%d, want 2/1", h.engine.created(), h.engine.closed())
	}
}

func TestAnswerForUnknownSessionIsIgnored(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1"})
	before := h.ctl.Peers()

	h.ctl.Dispatch(core.AnswerReceived{From: "zzz", Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}})
	h.ctl.Dispatch(core.CandidateReceived{From: "zzz", Candidate: webrtc.ICECandidateInit{Candidate: "c"}})

	after := h.ctl.Peers()
	if len(before) != len(after) || h.ctl.State() != StateActive {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}
	if len(h.engine.handles[0].answers) != 0 {
		t.Fatal("answer applied to the wrong session")
	}
}

func TestAnswerAndCandidateRouted(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1"})
	h.ctl.Dispatch(core.AnswerReceived{From: "peer-1", Description: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}})
	h.ctl.Dispatch(core.CandidateReceived{From: "peer-1", Candidate: webrtc.ICECandidateInit{Candidate: "c"}})
	h.ctl.Dispatch(core.LocalCandidate{SID: "peer-1", Candidate: webrtc.ICECandidateInit{Candidate: "mine"}})

	fh := h.engine.handles[0]
	if len(fh.answers) != 1 || len(fh.cands) != 1 {
		t.Fatalf("answers=%d cands=%d", len(fh.answers), len(fh.cands))
	}
	if c := h.signal.sentOf("candidate"); len(c) != 1 || c[0].target != "peer-1" {
		t.Fatalf("local candidate not relayed: %+v", c)
	}
}

func TestStreamAndParticipantLeft(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1"})
	h.ctl.Dispatch(core.RemoteStreamReady{SID: "peer-1", Stream: fakeRemote{id: "s1"}})
	h.ctl.Dispatch(core.RemoteStreamReady{SID: "ghost", Stream: fakeRemote{id: "s2"}})

	peers := h.ctl.Peers()
	if len(peers) != 1 || !peers[0].HasStream {
		t.Fatalf("peers = %+v", peers)
	}
	h.ctl.Dispatch(core.ParticipantLeft{SID: "peer-1"})
	h.ctl.Dispatch(core.ParticipantLeft{SID: "peer-1"})
	if len(h.ctl.Peers()) != 0 || h.engine.closed() != 1 {
		t.Fatalf("peers=%d closed=%d", len(h.ctl.Peers()), h.engine.closed())
	}
}

func TestSessionCountTracksJoinsAndLeaves(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	steps := []struct {
		ev   core.Event
		want int
	}{
		{core.ParticipantJoined{SID: "a"}, 1},
		{core.ParticipantJoined{SID: "b"}, 2},
		{core.OfferReceived{From: "c", Description: offer("c")}, 3},
		{core.ParticipantJoined{SID: "a"}, 3},
		{core.ParticipantLeft{SID: "b"}, 2},
		{core.ParticipantLeft{SID: "zzz"}, 2},
		{core.NegotiationFailed{SID: "c", Reason: "ice failed"}, 1},
		{core.ParticipantLeft{SID: "a"}, 0},
		{core.ParticipantLeft{SID: "a"}, 0},
	}
	for i, s := range steps {
		h.ctl.Dispatch(s.ev)
		if got := len(h.ctl.Peers()); got != s.want {
			t.Fatalf("step %d (%s): sessions = %d, want %d", i, s.ev.EventName(), got, s.want)
		}
	}
	if h.engine.created() != h.engine.closed() {
		t.Fatalf("created=%d closed=%d", h.engine.created(), h.engine.closed())
	}
}

func TestLeaveReleasesSessionsBeforeStoppingMedia(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	const n = 4
	for i := 0; i < n; i++ {
		h.ctl.Dispatch(core.ParticipantJoined{SID: core.SessionID(fmt.Sprintf("peer-%d", i))})
	}

	h.ctl.Leave()

	steps := h.rec.list()
	if len(steps) != n+3 {
		t.Fatalf("steps = %v", steps)
	}
	if steps[0] != "depart" {
		t.Fatalf("first step = %q, want depart", steps[0])
	}
	for i := 1; i <= n; i++ {
		if len(steps[i]) < 6 || steps[i][:6] != "close:" {
			t.Fatalf("step %d = %q, want a handle release", i, steps[i])
		}
	}
	if steps[n+1] != "stop" || steps[n+2] != "signal-close" {
		t.Fatalf("tail = %v, want stop then signal-close", steps[n+1:])
	}
	if h.ctl.State() != StateLeft {
		t.Fatalf("state = %s, want left", h.ctl.State())
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1"})
	h.ctl.Leave()
	h.ctl.Leave()

	if h.engine.closed() != 1 || h.stream.stops != 1 || h.signal.closed != 1 || len(h.signal.departed) != 1 {
		t.Fatalf("closed=%d stops=%d signalClosed=%d departed=%d",
			h.engine.closed(), h.stream.stops, h.signal.closed, len(h.signal.departed))
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "late"})
	if h.engine.created() != 1 {
		t.Fatal("event after leave created a session")
	}
}

func TestLeaveBeforeJoin(t *testing.T) {
	h := newHarness(true)
	h.ctl.Leave()
	if h.ctl.State() != StateLeft {
		t.Fatalf("state = %s, want left", h.ctl.State())
	}
	if err := h.join(); !errors.Is(err, ErrLeft) {
		t.Fatalf("Join after Leave = %v, want ErrLeft", err)
	}
}

func TestLeaveDuringJoin(t *testing.T) {
	h := newHarness(true)
	h.dialer.hook = func() { h.ctl.Leave() }

	err := h.join()
	if !errors.Is(err, ErrLeft) {
		t.Fatalf("Join = %v, want ErrLeft", err)
	}
	if h.ctl.State() != StateLeft {
		t.Fatalf("state = %s, want left", h.ctl.State())
	}
	if h.stream.stops != 1 {
		t.Fatalf("media acquired during join stopped %d times, want 1", h.stream.stops)
	}
	if h.signal.closed != 1 {
		t.Fatalf("channel dialed during join closed %d times, want 1", h.signal.closed)
	}
	if len(h.signal.presence) != 0 || len(h.signal.departed) != 0 {
		t.Fatal("presence must not be announced after leave")
	}
	if len(h.member.released) != 1 || h.member.released[0] != "me" {
		t.Fatalf("released slots = %v, want [me]", h.member.released)
	}
}

func TestLeaveDuringAnnounceSendsDeparture(t *testing.T) {
	h := newHarness(true)
	h.signal.onAnnounce = func() { h.ctl.Leave() }

	if err := h.join(); !errors.Is(err, ErrLeft) {
		t.Fatalf("Join = %v, want ErrLeft", err)
	}
	if len(h.signal.departed) != 1 {
		t.Fatalf("departures = %d, want 1", len(h.signal.departed))
	}
	if len(h.member.released) != 1 {
		t.Fatalf("released slots = %v, want one", h.member.released)
	}
}

func TestLeaveDuringMembershipJoin(t *testing.T) {
	h := newHarness(true)
	h.member.hook = func() { h.ctl.Leave() }

	if err := h.join(); !errors.Is(err, ErrLeft) {
		t.Fatalf("Join = %v, want ErrLeft", err)
	}
	if h.stream.stops != 0 || h.signal.closed != 0 {
		t.Fatal("nothing beyond membership should have been acquired")
	}
	if len(h.member.released) != 1 || h.member.released[0] != "me" {
		t.Fatalf("released slots = %v, want [me]", h.member.released)
	}
}

func TestToggleAudioTwice(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1"})
	created, closed := h.engine.created(), h.engine.closed()
	audio := h.stream.tracks[0].(*fakeTrack)
	orig := audio.Enabled()

	if on := h.ctl.ToggleAudio(); on == orig || audio.Enabled() == orig {
		t.Fatal("first toggle did not flip audio")
	}
	h.ctl.ToggleAudio()

	if audio.Enabled() != orig || h.ctl.Local().AudioEnabled != orig {
		t.Fatal("audio not restored after two toggles")
	}
	if !h.stream.tracks[1].Enabled() {
		t.Fatal("audio toggle touched the video track")
	}
	if h.engine.created() != created || h.engine.closed() != closed {
		t.Fatal("toggle churned peer sessions")
	}
}

func TestToggleVideo(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if h.ctl.ToggleVideo() {
		t.Fatal("video should be off after first toggle")
	}
	if h.stream.tracks[1].Enabled() {
		t.Fatal("video track still enabled")
	}
}

func TestChatAndCaptions(t *testing.T) {
	var reasons []string
	h := newHarness(true)
	h.ctl.cfg.Observer = func(r string) { reasons = append(reasons, r) }
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := h.ctl.SendChat("hello"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	if len(h.signal.chats) != 1 || h.signal.chats[0] != "alice: hello" {
		t.Fatalf("chats = %v", h.signal.chats)
	}
	if len(h.ctl.Messages()) != 0 {
		t.Fatal("message recorded before echo")
	}

	h.ctl.Dispatch(core.ChatReceived{Message: domain.Message{Author: "alice", Text: "hello", Timestamp: time.Now()}})
	for i := 0; i < core.CaptionRetention+1; i++ {
		h.ctl.Dispatch(core.CaptionReceived{Caption: domain.Caption{ID: fmt.Sprint(i), Text: "hi"}})
	}

	if len(h.ctl.Messages()) != 1 {
		t.Fatalf("messages = %d", len(h.ctl.Messages()))
	}
	caps := h.ctl.Captions()
	if len(caps) != core.CaptionRetention {
		t.Fatalf("captions = %d, want %d", len(caps), core.CaptionRetention)
	}
	if caps[0].ID != fmt.Sprint(core.CaptionRetention) {
		t.Fatalf("newest caption = %s", caps[0].ID)
	}
	if len(reasons) == 0 {
		t.Fatal("observer not notified")
	}
}

func TestSendChatRequiresActive(t *testing.T) {
	h := newHarness(true)
	if err := h.ctl.SendChat("x"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SendChat = %v, want ErrNotActive", err)
	}
}

func TestSignalingClosedCleansUp(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.ctl.Dispatch(core.ParticipantJoined{SID: "peer-1"})
	h.ctl.Dispatch(core.SignalingClosed{Err: core.ErrSignalingClosed})

	if h.ctl.State() != StateLeft {
		t.Fatalf("state = %s, want left", h.ctl.State())
	}
	if len(h.signal.departed) != 0 {
		t.Fatal("departure announced over a closed channel")
	}
	if h.engine.closed() != 1 || h.stream.stops != 1 {
		t.Fatalf("closed=%d stops=%d", h.engine.closed(), h.stream.stops)
	}
}

func TestPlaceholderSlots(t *testing.T) {
	h := newHarness(true)
	h.member.rooms["room-1"].Capacity = 3
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := h.ctl.PlaceholderSlots(); got != 2 {
		t.Fatalf("slots = %d, want 2", got)
	}
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		h.ctl.Dispatch(core.ParticipantJoined{SID: sid})
	}
	if got := len(h.ctl.Peers()); got != 3 {
		t.Fatalf("capacity is advisory, sessions = %d, want 3", got)
	}
	if got := h.ctl.PlaceholderSlots(); got != 0 {
		t.Fatalf("slots = %d, want 0", got)
	}
}

func TestNegotiationDeadlineMarksStalled(t *testing.T) {
	h := newHarness(true)
	h.ctl.cfg.NegotiationTimeout = 10 * time.Millisecond
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.ctl.Run(ctx) }()

	h.ctl.Post(core.ParticipantJoined{SID: "slow"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		peers := h.ctl.Peers()
		if len(peers) == 1 && peers[0].Stalled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never marked stalled")
}

func TestRunStopsOnLeave(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- h.ctl.Run(context.Background()) }()

	h.ctl.Leave()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Leave")
	}
	h.ctl.Post(core.ParticipantJoined{SID: "late"})
}
