package mesh

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	DefaultSampleInterval = time.Second
	SampleSize            = 128
	sampleQuality         = 80
)

// Sampler periodically sends a downscaled local frame to the classifier.
// Failed ticks are logged and skipped; there is no retry.
type Sampler struct {
	Controller *Controller
	Classifier core.Classifier
	Interval   time.Duration
}

func NewSampler(c *Controller, cl core.Classifier, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{Controller: c, Classifier: cl, Interval: interval}
}

// Run ticks until ctx is cancelled or the controller finished.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Controller.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Warn().Err(err).Str("module", "mesh.sampler").Msg("frame skipped")
			}
		}
	}
}

// Tick samples one frame. It returns nil without doing anything when there
// is no local video to sample. Accepted captions come back through the room
// broadcast as CaptionReceived; the returned prediction is only logged.
func (s *Sampler) Tick(ctx context.Context) error {
	stream, room, pid, ok := s.Controller.sampleTarget()
	if !ok {
		return nil
	}
	frame, err := stream.Snapshot()
	if err != nil {
		return core.NewOpError("snapshot", err)
	}
	data, err := EncodeFrame(frame)
	if err != nil {
		return core.NewOpError("encode frame", err)
	}

	pred, err := s.Classifier.Classify(ctx, core.ClassifyRequest{
		ImageData:     data,
		RoomID:        room,
		ParticipantID: pid,
	})
	if err != nil {
		return core.NewOpError("classify", errors.Join(core.ErrClassificationFailed, err))
	}
	if pred.Recognized() {
		log.Debug().Str("module", "mesh.sampler").Str("label", pred.Label).Float64("confidence", pred.Confidence).Msg("prediction")
	}
	return nil
}

// EncodeFrame downscales img to SampleSize square and returns it as a
// base64 JPEG data URL.
func EncodeFrame(img image.Image) (string, error) {
	dst := image.NewRGBA(image.Rect(0, 0, SampleSize, SampleSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: sampleQuality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
