package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dkeye/SignMeet/internal/adapters/media"
	"github.com/dkeye/SignMeet/internal/adapters/rtc"
	sig "github.com/dkeye/SignMeet/internal/adapters/signal"
	"github.com/dkeye/SignMeet/internal/app/mesh"
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/dkeye/SignMeet/internal/wire"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var joinCmd = &cobra.Command{
	Use:   "join ROOM_ID",
	Short: "Join a room as a mesh participant",
	Long: `Join a room and stay connected until /leave, end of input or Ctrl+C.

Media comes from files: --video (IVF), --audio (Ogg/Opus) and --snapshots
(a directory of jpg/png frames sent to the sign classifier). Without any
of them the participant joins chat-only.

Input lines are sent as chat. Commands:
  /mute      toggle the microphone
  /video     toggle the camera
  /peers     list connected peers
  /captions  show recent captions
  /leave     leave the room`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, client, err := setup(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("--name is required to join")
	}
	codec, err := wire.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	engine, err := rtc.NewEngine(rtc.DefaultWebRTCConfig(cfg.STUN...))
	if err != nil {
		return fmt.Errorf("failed to init webrtc: %w", err)
	}

	var source core.MediaSource
	if cfg.Video != "" || cfg.Audio != "" || cfg.Snapshots != "" {
		source = &media.Source{VideoPath: cfg.Video, AudioPath: cfg.Audio, SnapshotDir: cfg.Snapshots}
	}

	view := &roomView{}
	ctl := mesh.NewController(mesh.Config{
		Membership:         client,
		Media:              source,
		Engine:             engine,
		Dialer:             &sig.Dialer{URL: cfg.SignalURL(), Codec: codec},
		NegotiationTimeout: cfg.NegotiationTimeout,
		Observer:           view.observe,
	})
	view.ctl = ctl

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctl.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := ctl.Join(gctx, domain.RoomID(args[0]), cfg.Name); err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	view.banner()

	sampler := mesh.NewSampler(ctl, client, cfg.SampleInterval)
	g.Go(func() error { return sampler.Run(gctx) })

	// Stdin cannot be interrupted; the reader is not part of the group.
	go readCommands(ctl, view)

	err = g.Wait()
	fmt.Println(mutedStyle.Render("left the room"))
	return err
}

func readCommands(ctl *mesh.Controller, view *roomView) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
		case "/leave":
			ctl.Leave()
			return
		case "/mute":
			if ctl.ToggleAudio() {
				fmt.Println(mutedStyle.Render("microphone on"))
			} else {
				fmt.Println(mutedStyle.Render("microphone off"))
			}
		case "/video":
			if ctl.ToggleVideo() {
				fmt.Println(mutedStyle.Render("camera on"))
			} else {
				fmt.Println(mutedStyle.Render("camera off"))
			}
		case "/peers":
			view.peers()
		case "/captions":
			view.captions()
		default:
			if err := ctl.SendChat(line); err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
		}
	}
	ctl.Leave()
}

// roomView prints controller changes as they are observed.
type roomView struct {
	ctl *mesh.Controller

	mu          sync.Mutex
	seen        int
	lastCaption string
	lastPeers   int
}

func (v *roomView) observe(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch reason {
	case "messages":
		msgs := v.ctl.Messages()
		if v.seen > len(msgs) {
			v.seen = 0
		}
		for _, m := range msgs[v.seen:] {
			fmt.Printf("%s %s %s\n", mutedStyle.Render(m.Timestamp.Local().Format("15:04")), authorStyle.Render(m.Author+":"), m.Text)
		}
		v.seen = len(msgs)
	case "captions":
		caps := v.ctl.Captions()
		if len(caps) == 0 || caps[0].ID == v.lastCaption {
			return
		}
		v.lastCaption = caps[0].ID
		fmt.Printf("%s %s\n", authorStyle.Render(caps[0].ParticipantName), captionStyle.Render("« "+caps[0].Text+" »"))
	case "peers":
		n := len(v.ctl.Peers())
		if n != v.lastPeers {
			v.lastPeers = n
			fmt.Println(mutedStyle.Render(fmt.Sprintf("%d peer(s) connected, %d free slot(s)", n, v.ctl.PlaceholderSlots())))
		}
	case "state":
		log.Debug().Str("module", "cli").Str("state", v.ctl.State().String()).Msg("state changed")
	}
}

func (v *roomView) banner() {
	room := v.ctl.Room()
	local := v.ctl.Local()
	mode := okStyle.Render("audio/video")
	if local.Stream == nil {
		mode = warnStyle.Render("chat only")
	}
	fmt.Println(boxStyle.Render(fmt.Sprintf("%s\n\nroom:  %s\nmedia: %s\n\ntype to chat, /leave to quit",
		titleStyle.Render(string(room.Name)), room.ID, mode)))
}

func (v *roomView) peers() {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Session", "Role", "Participant", "Media", "Packets", "Since"})
	for _, p := range v.ctl.Peers() {
		state := "waiting"
		switch {
		case p.HasStream:
			state = "streaming"
		case p.Stalled:
			state = "stalled"
		}
		var packets uint64
		if rs, ok := p.Stream.(*rtc.RemoteStream); ok {
			for _, st := range rs.Stats() {
				packets += st.Packets
			}
		}
		t.AppendRow(table.Row{shortID(string(p.SID)), p.Role.String(), p.ParticipantID, state, packets, p.CreatedAt.Local().Format("15:04:05")})
	}
	fmt.Println(t.Render())
}

func (v *roomView) captions() {
	caps := v.ctl.Captions()
	if len(caps) == 0 {
		fmt.Println(mutedStyle.Render("no captions yet"))
		return
	}
	for _, c := range caps {
		fmt.Printf("%s %s\n", authorStyle.Render(c.ParticipantName), captionStyle.Render(c.Text))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
