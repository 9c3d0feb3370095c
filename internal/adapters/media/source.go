// Package media provides file-backed local capture for headless participants:
// an IVF video file, an Ogg/Opus audio file and a directory of still frames
// used for sampling.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const streamID = "signmeet"

// Source implements core.MediaSource. At least one of VideoPath, AudioPath
// or SnapshotDir must be set.
type Source struct {
	VideoPath   string
	AudioPath   string
	SnapshotDir string
}

func (s *Source) Acquire(ctx context.Context) (core.LocalStream, error) {
	if s.VideoPath == "" && s.AudioPath == "" && s.SnapshotDir == "" {
		return nil, core.ErrMediaAccessDenied
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{cancel: cancel}

	if s.VideoPath != "" {
		t, err := newVideoTrack(s.VideoPath)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", core.ErrMediaAccessDenied, err)
		}
		st.tracks = append(st.tracks, t)
	}
	if s.AudioPath != "" {
		t, err := newAudioTrack(s.AudioPath)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", core.ErrMediaAccessDenied, err)
		}
		st.tracks = append(st.tracks, t)
	}
	if s.SnapshotDir != "" {
		frames, err := listFrames(s.SnapshotDir)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", core.ErrMediaAccessDenied, err)
		}
		st.frames = frames
	}

	for _, t := range st.tracks {
		st.wg.Add(1)
		go func(t *Track) {
			defer st.wg.Done()
			t.pump(ctx)
		}(t)
	}
	log.Info().Str("module", "media").Int("tracks", len(st.tracks)).Int("frames", len(st.frames)).Msg("local media acquired")
	return st, nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no jpg or png frames in %s", dir)
	}
	sort.Strings(out)
	return out, nil
}

// Stream implements core.LocalStream.
type Stream struct {
	tracks []*Track
	frames []string
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	next     int
	stopOnce sync.Once
}

func (s *Stream) Tracks() []core.LocalTrack {
	out := make([]core.LocalTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// Snapshot decodes the next still frame, cycling through the directory.
func (s *Stream) Snapshot() (image.Image, error) {
	if len(s.frames) == 0 {
		return nil, core.ErrNoFrame
	}
	s.mu.Lock()
	path := s.frames[s.next%len(s.frames)]
	s.next++
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Stop ends every pump and waits for them.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		log.Info().Str("module", "media").Msg("local media stopped")
	})
}

var errUnsupportedCodec = errors.New("unsupported ivf codec")

func mimeForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("%w: %q", errUnsupportedCodec, fourcc)
}

func probeIVF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", err
	}
	return mimeForFourCC(header.FourCC)
}

func probeOgg(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = oggreader.NewWith(f)
	return err
}
