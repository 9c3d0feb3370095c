package mesh

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/dkeye/SignMeet/internal/core"
)

type fakeClassifier struct {
	reqs []core.ClassifyRequest
	err  error
}

func (f *fakeClassifier) Classify(_ context.Context, req core.ClassifyRequest) (core.Prediction, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return core.Prediction{}, f.err
	}
	return core.Prediction{Label: "hello", Confidence: 0.9}, nil
}

func TestEncodeFrame(t *testing.T) {
	h := newHarness(true)
	url, err := EncodeFrame(h.stream.frame)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("unexpected prefix: %.40s", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != SampleSize || b.Dy() != SampleSize {
		t.Fatalf("frame is %dx%d", b.Dx(), b.Dy())
	}
}

func TestSamplerTick(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	cl := &fakeClassifier{}
	s := NewSampler(h.ctl, cl, 0)
	if s.Interval != DefaultSampleInterval {
		t.Fatalf("interval = %v", s.Interval)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(cl.reqs) != 1 {
		t.Fatalf("requests = %d", len(cl.reqs))
	}
	req := cl.reqs[0]
	if req.RoomID != "room-1" || req.ParticipantID != "me" || req.ImageData == "" {
		t.Fatalf("request = %+v", req)
	}
	if n := len(h.ctl.Captions()); n != 0 {
		t.Fatalf("prediction recorded locally as %d captions; captions arrive by broadcast", n)
	}
}

func TestSamplerFailureIsSkipped(t *testing.T) {
	h := newHarness(true)
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	cl := &fakeClassifier{err: errors.New("503")}
	s := NewSampler(h.ctl, cl, 0)

	err := s.Tick(context.Background())
	if !errors.Is(err, core.ErrClassificationFailed) {
		t.Fatalf("Tick = %v, want ErrClassificationFailed", err)
	}
	cl.err = nil
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("next tick must proceed: %v", err)
	}
	if len(cl.reqs) != 2 {
		t.Fatalf("requests = %d, want 2 (no retry)", len(cl.reqs))
	}
}

func TestSamplerIdleWithoutVideo(t *testing.T) {
	cases := []struct {
		name  string
		media bool
		setup func(*harness)
	}{
		{"chat-only", false, func(*harness) {}},
		{"video off", true, func(h *harness) { h.ctl.ToggleVideo() }},
		{"left", true, func(h *harness) { h.ctl.Leave() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(tc.media)
			if err := h.join(); err != nil {
				t.Fatalf("Join: %v", err)
			}
			tc.setup(h)
			cl := &fakeClassifier{}
			if err := NewSampler(h.ctl, cl, 0).Tick(context.Background()); err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if len(cl.reqs) != 0 {
				t.Fatalf("classifier called %d times", len(cl.reqs))
			}
		})
	}
}

func TestSamplerNoFrame(t *testing.T) {
	h := newHarness(true)
	h.stream.frame = nil
	if err := h.join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	err := NewSampler(h.ctl, &fakeClassifier{}, 0).Tick(context.Background())
	if !errors.Is(err, core.ErrNoFrame) {
		t.Fatalf("Tick = %v, want ErrNoFrame", err)
	}
}
