package mesh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrLeft          = errors.New("left the room")
	ErrAlreadyJoined = errors.New("room session already started")
	ErrNotActive     = errors.New("room session is not active")
)

const releaseTimeout = 5 * time.Second

type State int

const (
	StateUninitialized State = iota
	StateJoining
	StateActive
	StateLeaving
	StateLeft
	StateJoinFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateLeft:
		return "left"
	case StateJoinFailed:
		return "join-failed"
	}
	return "unknown"
}

// NegotiationDeadline fires when a session armed with a timeout may still
// be waiting for its remote stream.
type NegotiationDeadline struct {
	SID    core.SessionID
	Handle core.NegotiationHandle
}

func (NegotiationDeadline) EventName() string { return "negotiation-deadline" }

// RoomState is the room metadata seen by the local participant.
type RoomState struct {
	ID       domain.RoomID
	Name     domain.RoomName
	Capacity int
}

// LocalSession is the local capture. Stream is nil in chat-only mode.
type LocalSession struct {
	Stream       core.LocalStream
	AudioEnabled bool
	VideoEnabled bool
}

// Observer is called after the controller state visible to readers changed.
// It runs outside the controller lock and may call any accessor.
type Observer func(reason string)

type Config struct {
	Membership core.Membership
	// Media may be nil; the participant then joins chat-only.
	Media  core.MediaSource
	Engine core.NegotiationEngine
	Dialer core.SignalDialer
	// NegotiationTimeout marks sessions without a remote stream as stalled.
	// Zero disables it.
	NegotiationTimeout time.Duration
	Observer           Observer
	QueueSize          int
}

// Controller is the room session state machine. Every input arrives as an
// event; Run drains them one at a time and each handler runs to completion
// under the controller lock.
type Controller struct {
	cfg      Config
	registry *Registry
	events   chan core.Event
	done     chan struct{}
	doneOnce sync.Once

	mu        sync.Mutex
	state     State
	room      RoomState
	self      *domain.Participant
	sid       core.SessionID
	local     LocalSession
	signal    core.SignalingChannel
	announced bool
	messages  []domain.Message
	captions  *core.CaptionLog
	changed   []string
}

func NewController(cfg Config) *Controller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	c := &Controller{
		cfg:      cfg,
		events:   make(chan core.Event, cfg.QueueSize),
		done:     make(chan struct{}),
		captions: core.NewCaptionLog(core.CaptionRetention),
	}
	c.registry = NewRegistry(cfg.Engine, c.Post)
	return c
}

// Post enqueues an event. Events posted after the session ended are dropped.
func (c *Controller) Post(ev core.Event) {
	select {
	case <-c.done:
		log.Debug().Str("module", "mesh.controller").Str("event", ev.EventName()).Msg("event after close dropped")
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run processes events until the session ends or ctx is cancelled, in
// which case the room is left.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.Leave()
			return ctx.Err()
		case <-c.done:
			return nil
		case ev := <-c.events:
			c.Dispatch(ev)
		}
	}
}

// Done is closed once the controller reached Left or JoinFailed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Join acquires room metadata, registers the participant, captures media,
// opens signaling and announces presence. Media failure is not an error.
// A Leave issued meanwhile wins: Join releases what it holds, including the
// membership slot, and returns ErrLeft.
func (c *Controller) Join(ctx context.Context, roomID domain.RoomID, name string) error {
	c.mu.Lock()
	switch c.state {
	case StateUninitialized:
	case StateLeft, StateLeaving:
		c.mu.Unlock()
		return ErrLeft
	default:
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.state = StateJoining
	c.markLocked("state")
	c.unlockNotify()

	room, err := c.cfg.Membership.GetRoom(ctx, roomID)
	if err != nil {
		return c.failJoin(ctx, core.NewOpError("get room", err))
	}
	if !c.stash(func() {
		c.room = RoomState{ID: room.ID, Name: room.Name, Capacity: room.Capacity}
	}) {
		return ErrLeft
	}

	self, err := c.cfg.Membership.JoinRoom(ctx, room.ID, name)
	if err != nil {
		return c.failJoin(ctx, core.NewOpError("join room", err))
	}
	if !c.stash(func() { c.self = self }) {
		return c.abandon(ctx, room.ID, self.ID)
	}

	stream := c.acquire(ctx)
	if !c.stash(func() {
		c.local = LocalSession{Stream: stream, AudioEnabled: stream != nil, VideoEnabled: stream != nil}
	}) {
		if stream != nil {
			stream.Stop()
		}
		return c.abandon(ctx, room.ID, self.ID)
	}

	ch, err := c.cfg.Dialer.Dial(ctx, c.Post)
	if err != nil {
		return c.failJoin(ctx, core.NewOpError("dial signaling", err))
	}
	if !c.stash(func() { c.signal = ch }) {
		ch.Close()
		return c.abandon(ctx, room.ID, self.ID)
	}

	// A Leave racing the announcement must still send the departure.
	if !c.stash(func() { c.announced = true }) {
		return c.abandon(ctx, room.ID, self.ID)
	}
	if err := ch.AnnouncePresence(room.ID, self.ID); err != nil {
		return c.failJoin(ctx, core.NewOpError("announce presence", err))
	}

	c.mu.Lock()
	if c.state != StateJoining {
		c.mu.Unlock()
		return c.abandon(ctx, room.ID, self.ID)
	}
	c.state = StateActive
	c.markLocked("state")
	c.unlockNotify()

	log.Info().Str("module", "mesh.controller").Str("room", string(room.ID)).Str("participant", string(self.ID)).
		Bool("media", stream != nil).Msg("joined")
	return nil
}

func (c *Controller) acquire(ctx context.Context) core.LocalStream {
	if c.cfg.Media == nil {
		log.Warn().Err(core.ErrMediaAccessDenied).Str("module", "mesh.controller").Msg("no media source, chat-only")
		return nil
	}
	stream, err := c.cfg.Media.Acquire(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "mesh.controller").Msg("media unavailable, chat-only")
		return nil
	}
	return stream
}

// stash stores a resource acquired by Join unless a Leave happened meanwhile.
func (c *Controller) stash(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateJoining {
		return false
	}
	fn()
	return true
}

func (c *Controller) failJoin(ctx context.Context, err error) error {
	c.mu.Lock()
	var room domain.RoomID
	var pid domain.ParticipantID
	if c.self != nil {
		room, pid = c.room.ID, c.self.ID
	}
	if c.state != StateJoining {
		c.mu.Unlock()
		if pid != "" {
			c.releaseSlot(ctx, room, pid)
		}
		return ErrLeft
	}
	if c.local.Stream != nil {
		c.local.Stream.Stop()
		c.local.Stream = nil
	}
	if c.signal != nil {
		c.signal.Close()
		c.signal = nil
	}
	c.state = StateJoinFailed
	c.markLocked("state")
	c.finish()
	c.unlockNotify()

	if pid != "" {
		c.releaseSlot(ctx, room, pid)
	}
	log.Error().Err(err).Str("module", "mesh.controller").Msg("join failed")
	return err
}

// abandon frees the slot of a Join overtaken by Leave.
func (c *Controller) abandon(ctx context.Context, room domain.RoomID, pid domain.ParticipantID) error {
	c.releaseSlot(ctx, room, pid)
	return ErrLeft
}

// releaseSlot hands the membership slot back. It outlives a cancelled ctx,
// and a slot the server already freed on disconnect is not an error.
func (c *Controller) releaseSlot(ctx context.Context, room domain.RoomID, pid domain.ParticipantID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	err := c.cfg.Membership.LeaveRoom(ctx, room, pid)
	switch {
	case err == nil:
		log.Info().Str("module", "mesh.controller").Str("room", string(room)).Str("participant", string(pid)).Msg("slot released")
	case errors.Is(err, core.ErrParticipantNotFound), errors.Is(err, core.ErrRoomNotFound):
		log.Debug().Err(err).Str("module", "mesh.controller").Str("participant", string(pid)).Msg("slot already gone")
	default:
		log.Warn().Err(err).Str("module", "mesh.controller").Str("participant", string(pid)).Msg("release slot")
	}
}

// Leave announces departure, releases every peer session, stops local
// capture, then closes signaling. Safe from any state and idempotent.
func (c *Controller) Leave() {
	c.mu.Lock()
	switch c.state {
	case StateLeaving, StateLeft, StateJoinFailed:
		c.mu.Unlock()
		return
	}
	c.teardown(true)
	c.unlockNotify()
}

func (c *Controller) teardown(announce bool) {
	c.state = StateLeaving

	if announce && c.announced && c.signal != nil {
		if err := c.signal.AnnounceDeparture(c.room.ID); err != nil {
			log.Warn().Err(err).Str("module", "mesh.controller").Msg("announce departure")
		}
	}
	n := c.registry.RemoveAll()
	if c.local.Stream != nil {
		c.local.Stream.Stop()
	}
	if c.signal != nil {
		c.signal.Close()
	}

	c.state = StateLeft
	c.markLocked("state")
	c.finish()
	log.Info().Str("module", "mesh.controller").Str("room", string(c.room.ID)).Int("released", n).Msg("left")
}

func (c *Controller) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Dispatch handles one event to completion.
func (c *Controller) Dispatch(ev core.Event) {
	c.mu.Lock()
	defer c.unlockNotify()

	if c.state != StateActive && c.state != StateJoining {
		log.Debug().Err(core.ErrLateEvent).Str("module", "mesh.controller").Str("event", ev.EventName()).
			Str("state", c.state.String()).Msg("event ignored")
		return
	}

	switch e := ev.(type) {
	case core.Welcome:
		c.sid = e.SID
	case core.ParticipantJoined:
		c.onParticipantJoined(e)
	case core.OfferReceived:
		c.onOffer(e)
	case core.AnswerReceived:
		c.onAnswer(e)
	case core.CandidateReceived:
		c.onCandidate(e)
	case core.RemoteStreamReady:
		if c.registry.AttachRemoteStream(e.SID, e.Stream) {
			c.markLocked("peers")
		}
	case core.ParticipantLeft:
		if c.registry.RemoveSession(e.SID) {
			c.markLocked("peers")
		}
	case core.ChatReceived:
		c.messages = append(c.messages, e.Message)
		c.markLocked("messages")
	case core.CaptionReceived:
		c.captions.Add(e.Caption)
		c.markLocked("captions")
	case core.ServerError:
		log.Warn().Str("module", "mesh.controller").Str("error", e.Text).Msg("server error")
	case core.SignalingClosed:
		log.Warn().Err(e.Err).Str("module", "mesh.controller").Msg("signaling closed")
		c.teardown(false)
	case core.LocalCandidate:
		c.onLocalCandidate(e)
	case core.NegotiationFailed:
		log.Warn().Str("module", "mesh.controller").Str("sid", string(e.SID)).Str("reason", e.Reason).Msg("negotiation failed")
		if c.registry.RemoveSession(e.SID) {
			c.markLocked("peers")
		}
	case NegotiationDeadline:
		if c.registry.MarkStalled(e.SID, e.Handle) {
			log.Warn().Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("negotiation stalled")
			c.markLocked("peers")
		}
	default:
		log.Warn().Str("module", "mesh.controller").Str("event", ev.EventName()).Msg("unhandled event")
	}
}

func (c *Controller) onParticipantJoined(e core.ParticipantJoined) {
	if e.SID == c.sid {
		return
	}
	if c.local.Stream == nil {
		log.Info().Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("chat-only, not initiating")
		return
	}
	if c.signal == nil {
		return
	}
	if c.registry.RemoveSession(e.SID) {
		log.Debug().Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("replacing session on rejoin")
	}

	ps, err := c.registry.CreateSession(e.SID, core.RoleInitiator, c.local.Stream)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("initiate")
		return
	}
	c.registry.SetParticipant(e.SID, e.ParticipantID)
	c.markLocked("peers")

	offer, err := ps.Handle.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("create offer")
		c.registry.RemoveSession(e.SID)
		return
	}
	if err := c.signal.SendOffer(e.SID, offer); err != nil {
		log.Warn().Err(err).Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("send offer")
	}
	c.armDeadline(ps)
}

func (c *Controller) onOffer(e core.OfferReceived) {
	if c.signal == nil {
		return
	}
	if c.registry.RemoveSession(e.From) {
		log.Debug().Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("re-offer, session recreated")
	}

	ps, err := c.registry.CreateSession(e.From, core.RoleResponder, c.local.Stream)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("respond")
		return
	}
	c.markLocked("peers")

	answer, err := ps.Handle.AcceptOffer(e.Description)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("accept offer")
		c.registry.RemoveSession(e.From)
		return
	}
	if err := c.signal.SendAnswer(e.From, answer); err != nil {
		log.Warn().Err(err).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("send answer")
	}
	c.armDeadline(ps)
}

func (c *Controller) onAnswer(e core.AnswerReceived) {
	ps, ok := c.registry.Session(e.From)
	if !ok {
		log.Debug().Err(core.ErrLateEvent).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("answer for unknown session")
		return
	}
	if err := ps.Handle.ApplyAnswer(e.Description); err != nil {
		log.Warn().Err(err).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("apply answer")
	}
}

func (c *Controller) onCandidate(e core.CandidateReceived) {
	ps, ok := c.registry.Session(e.From)
	if !ok {
		log.Debug().Err(core.ErrLateEvent).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("candidate for unknown session")
		return
	}
	if err := ps.Handle.AddICECandidate(e.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "mesh.controller").Str("sid", string(e.From)).Msg("add candidate")
	}
}

func (c *Controller) onLocalCandidate(e core.LocalCandidate) {
	if _, ok := c.registry.Session(e.SID); !ok || c.signal == nil {
		return
	}
	if err := c.signal.SendCandidate(e.SID, e.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "mesh.controller").Str("sid", string(e.SID)).Msg("send candidate")
	}
}

func (c *Controller) armDeadline(ps *PeerSession) {
	if c.cfg.NegotiationTimeout <= 0 {
		return
	}
	sid, h := ps.SID, ps.Handle
	time.AfterFunc(c.cfg.NegotiationTimeout, func() {
		c.Post(NegotiationDeadline{SID: sid, Handle: h})
	})
}

// ToggleAudio flips the microphone flag and returns the new value.
// No peer session is created or destroyed.
func (c *Controller) ToggleAudio() bool {
	return c.toggle(webrtc.RTPCodecTypeAudio)
}

func (c *Controller) ToggleVideo() bool {
	return c.toggle(webrtc.RTPCodecTypeVideo)
}

func (c *Controller) toggle(kind webrtc.RTPCodecType) bool {
	c.mu.Lock()
	defer c.unlockNotify()

	var on bool
	if kind == webrtc.RTPCodecTypeAudio {
		c.local.AudioEnabled = !c.local.AudioEnabled
		on = c.local.AudioEnabled
	} else {
		c.local.VideoEnabled = !c.local.VideoEnabled
		on = c.local.VideoEnabled
	}
	if c.local.Stream != nil {
		for _, t := range c.local.Stream.Tracks() {
			if t.Kind() == kind {
				t.SetEnabled(on)
			}
		}
	}
	c.markLocked("local")
	return on
}

// SendChat sends text to the room. The message is recorded when the
// server echoes it back.
func (c *Controller) SendChat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.signal == nil {
		return ErrNotActive
	}
	if err := c.signal.SendChat(c.room.ID, text, c.self.Name); err != nil {
		return core.NewOpError("send chat", err)
	}
	return nil
}

func (c *Controller) markLocked(reason string) {
	c.changed = append(c.changed, reason)
}

func (c *Controller) unlockNotify() {
	changed := c.changed
	c.changed = nil
	c.mu.Unlock()

	if c.cfg.Observer == nil {
		return
	}
	for _, r := range changed {
		c.cfg.Observer(r)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Peers() []PeerInfo { return c.registry.ListSessions() }

func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Captions returns newest first.
func (c *Controller) Captions() []domain.Caption {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captions.Snapshot()
}

func (c *Controller) Local() LocalSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Controller) Room() RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Controller) LocalSID() core.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// LocalParticipant is nil until the membership collaborator registered us.
func (c *Controller) LocalParticipant() *domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self == nil {
		return nil
	}
	p := *c.self
	return &p
}

// PlaceholderSlots is the number of empty tiles left before the advisory
// room capacity is reached. Never negative.
func (c *Controller) PlaceholderSlots() int {
	c.mu.Lock()
	capacity := c.room.Capacity
	c.mu.Unlock()

	free := capacity - 1 - c.registry.Len()
	if free < 0 {
		return 0
	}
	return free
}

// sampleTarget reports what the frame sampler should capture, if anything.
func (c *Controller) sampleTarget() (core.LocalStream, domain.RoomID, domain.ParticipantID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.local.Stream == nil || !c.local.VideoEnabled || c.self == nil {
		return nil, "", "", false
	}
	return c.local.Stream, c.room.ID, c.self.ID, true
}
