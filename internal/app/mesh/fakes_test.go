package mesh

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// recorder keeps a global order of resource releases across fakes.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeHandle struct {
	sid      core.SessionID
	role     core.Role
	local    core.LocalStream
	rec      *recorder
	closes   int
	answers  []webrtc.SessionDescription
	cands    []webrtc.ICECandidateInit
	offerErr error
}

func (h *fakeHandle) CreateOffer() (webrtc.SessionDescription, error) {
	if h.offerErr != nil {
		return webrtc.SessionDescription{}, h.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + string(h.sid)}, nil
}

func (h *fakeHandle) AcceptOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + string(h.sid)}, nil
}

func (h *fakeHandle) ApplyAnswer(a webrtc.SessionDescription) error {
	h.answers = append(h.answers, a)
	return nil
}

func (h *fakeHandle) AddICECandidate(c webrtc.ICECandidateInit) error {
	h.cands = append(h.cands, c)
	return nil
}

func (h *fakeHandle) Close() error {
	h.closes++
	if h.rec != nil {
		h.rec.add("close:" + string(h.sid))
	}
	return nil
}

type fakeEngine struct {
	mu      sync.Mutex
	rec     *recorder
	handles []*fakeHandle
	err     error
}

func (e *fakeEngine) NewHandle(sid core.SessionID, role core.Role, local core.LocalStream, _ core.EventSink) (core.NegotiationHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	h := &fakeHandle{sid: sid, role: role, local: local, rec: e.rec}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *fakeEngine) created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

func (e *fakeEngine) closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.handles {
		n += h.closes
	}
	return n
}

type sent struct {
	kind   string
	target core.SessionID
	desc   webrtc.SessionDescription
}

type fakeSignal struct {
	mu         sync.Mutex
	rec        *recorder
	onAnnounce func()
	sent       []sent
	presence   []domain.RoomID
	departed   []domain.RoomID
	chats      []string
	closed     int
}

func (s *fakeSignal) AnnouncePresence(room domain.RoomID, _ domain.ParticipantID) error {
	if s.onAnnounce != nil {
		s.onAnnounce()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = append(s.presence, room)
	return nil
}

func (s *fakeSignal) AnnounceDeparture(room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departed = append(s.departed, room)
	if s.rec != nil {
		s.rec.add("depart")
	}
	return nil
}

func (s *fakeSignal) SendOffer(target core.SessionID, d webrtc.SessionDescription) error {
	s.record(sent{kind: "offer", target: target, desc: d})
	return nil
}

func (s *fakeSignal) SendAnswer(target core.SessionID, d webrtc.SessionDescription) error {
	s.record(sent{kind: "answer", target: target, desc: d})
	return nil
}

func (s *fakeSignal) SendCandidate(target core.SessionID, _ webrtc.ICECandidateInit) error {
	s.record(sent{kind: "candidate", target: target})
	return nil
}

func (s *fakeSignal) SendChat(_ domain.RoomID, text, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, author+": "+text)
	return nil
}

func (s *fakeSignal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	if s.rec != nil {
		s.rec.add("signal-close")
	}
}

func (s *fakeSignal) record(m sent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
}

func (s *fakeSignal) sentOf(kind string) []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, m := range s.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeDialer struct {
	ch   *fakeSignal
	err  error
	hook func()
}

func (d *fakeDialer) Dial(context.Context, core.EventSink) (core.SignalingChannel, error) {
	if d.hook != nil {
		d.hook()
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.ch, nil
}

type fakeMembership struct {
	rooms    map[domain.RoomID]*domain.Room
	hook     func()
	released []domain.ParticipantID
}

func newFakeMembership(capacity int) *fakeMembership {
	return &fakeMembership{rooms: map[domain.RoomID]*domain.Room{
		"room-1": {ID: "room-1", Name: "demo", Capacity: capacity},
	}}
}

func (m *fakeMembership) CreateRoom(_ context.Context, name string, capacity int) (*domain.Room, error) {
	r := &domain.Room{ID: domain.NewRoomID(), Name: domain.RoomName(name), Capacity: capacity}
	m.rooms[r.ID] = r
	return r, nil
}

func (m *fakeMembership) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return r, nil
}

func (m *fakeMembership) JoinRoom(_ context.Context, id domain.RoomID, name string) (*domain.Participant, error) {
	if m.hook != nil {
		m.hook()
	}
	return &domain.Participant{ID: "me", Name: name, RoomID: id}, nil
}

func (m *fakeMembership) LeaveRoom(_ context.Context, _ domain.RoomID, pid domain.ParticipantID) error {
	m.released = append(m.released, pid)
	return nil
}

type fakeTrack struct {
	kind    webrtc.RTPCodecType
	enabled bool
}

func (t *fakeTrack) Kind() webrtc.RTPCodecType     { return t.kind }
func (t *fakeTrack) Enabled() bool                 { return t.enabled }
func (t *fakeTrack) SetEnabled(on bool)            { t.enabled = on }
func (t *fakeTrack) TrackLocal() webrtc.TrackLocal { return nil }

type fakeStream struct {
	rec    *recorder
	tracks []core.LocalTrack
	frame  image.Image
	stops  int
}

func newFakeStream(rec *recorder) *fakeStream {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for x := 0; x < 320; x++ {
		img.Set(x, x%240, color.RGBA{R: 200, A: 255})
	}
	return &fakeStream{
		rec: rec,
		tracks: []core.LocalTrack{
			&fakeTrack{kind: webrtc.RTPCodecTypeAudio, enabled: true},
			&fakeTrack{kind: webrtc.RTPCodecTypeVideo, enabled: true},
		},
		frame: img,
	}
}

func (s *fakeStream) Tracks() []core.LocalTrack { return s.tracks }

func (s *fakeStream) Snapshot() (image.Image, error) {
	if s.frame == nil {
		return nil, core.ErrNoFrame
	}
	return s.frame, nil
}

func (s *fakeStream) Stop() {
	s.stops++
	if s.rec != nil {
		s.rec.add("stop")
	}
}

type fakeMedia struct {
	stream *fakeStream
	err    error
}

func (m *fakeMedia) Acquire(context.Context) (core.LocalStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

type fakeRemote struct{ id string }

func (r fakeRemote) StreamID() string             { return r.id }
func (r fakeRemote) Kinds() []webrtc.RTPCodecType { return []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo} }

var errDenied = errors.New("permission denied")

// harness wires a controller to fakes.
type harness struct {
	rec    *recorder
	engine *fakeEngine
	signal *fakeSignal
	dialer *fakeDialer
	member *fakeMembership
	media  *fakeMedia
	stream *fakeStream
	ctl    *Controller
}

func newHarness(withMedia bool) *harness {
	h := &harness{rec: &recorder{}}
	h.engine = &fakeEngine{rec: h.rec}
	h.signal = &fakeSignal{rec: h.rec}
	h.dialer = &fakeDialer{ch: h.signal}
	h.member = newFakeMembership(domain.DefaultCapacity)
	h.stream = newFakeStream(h.rec)
	h.media = &fakeMedia{stream: h.stream}
	if !withMedia {
		h.media.err = errDenied
	}
	h.ctl = NewController(Config{
		Membership: h.member,
		Media:      h.media,
		Engine:     h.engine,
		Dialer:     h.dialer,
	})
	return h
}

func (h *harness) join() error {
	return h.ctl.Join(context.Background(), "room-1", "alice")
}
