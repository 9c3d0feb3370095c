package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	opusSampleRate       = 48000
)

// Track implements core.LocalTrack. A disabled track keeps its pace but
// writes nothing, so peers see silence or a frozen picture.
type Track struct {
	kind    webrtc.RTPCodecType
	path    string
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func newVideoTrack(path string) (*Track, error) {
	mime, err := probeIVF(path)
	if err != nil {
		return nil, err
	}
	tl, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{kind: webrtc.RTPCodecTypeVideo, path: path, local: tl}
	t.enabled.Store(true)
	return t, nil
}

func newAudioTrack(path string) (*Track, error) {
	if err := probeOgg(path); err != nil {
		return nil, err
	}
	tl, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{kind: webrtc.RTPCodecTypeAudio, path: path, local: tl}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) Kind() webrtc.RTPCodecType     { return t.kind }
func (t *Track) Enabled() bool                 { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool)            { t.enabled.Store(on) }
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

// pump replays the file in a loop until ctx is done.
func (t *Track) pump(ctx context.Context) {
	for ctx.Err() == nil {
		var err error
		if t.kind == webrtc.RTPCodecTypeVideo {
			err = t.playIVF(ctx)
		} else {
			err = t.playOgg(ctx)
		}
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("module", "media").Str("kind", t.kind.String()).Msg("pump stopped")
			return
		}
	}
}

func (t *Track) playIVF(ctx context.Context) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	d := defaultFrameDuration
	if header.TimebaseDenominator > 0 {
		d = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, _, err := r.ParseNextFrame()
		if err != nil {
			return err
		}
		t.write(media.Sample{Data: frame, Duration: d})
	}
}

func (t *Track) playOgg(ctx context.Context) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}

	var last uint64
	next := time.Now()
	for {
		page, header, err := r.ParseNextPage()
		if err != nil {
			return err
		}
		samples := header.GranulePosition - last
		last = header.GranulePosition
		d := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))

		next = next.Add(d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
		t.write(media.Sample{Data: page, Duration: d})
	}
}

func (t *Track) write(s media.Sample) {
	if !t.enabled.Load() {
		return
	}
	if err := t.local.WriteSample(s); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		log.Debug().Err(err).Str("module", "media").Str("kind", t.kind.String()).Msg("write sample")
	}
}
