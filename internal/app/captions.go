package app

import (
	"context"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultCaptionThreshold = 0.7

// Captions turns classifier verdicts into stored captions.
type Captions struct {
	Classifier   core.Classifier
	Repo         core.CaptionRepository
	Participants core.ParticipantRepository
	Threshold    float64
}

// Ready reports whether a classifier is wired and willing to answer.
func (c *Captions) Ready() bool {
	if c.Classifier == nil {
		return false
	}
	if r, ok := c.Classifier.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// Predict classifies one frame. A caption is returned only when the label is
// present and its confidence beats the threshold. Without a model the
// prediction is empty.
func (c *Captions) Predict(ctx context.Context, req core.ClassifyRequest) (core.Prediction, *domain.Caption, error) {
	if !c.Ready() {
		return core.Prediction{}, nil, nil
	}
	pred, err := c.Classifier.Classify(ctx, req)
	if err != nil {
		return core.Prediction{}, nil, core.NewOpError("classify", err)
	}
	if !pred.Recognized() || pred.Confidence <= c.threshold() {
		return core.Prediction{Confidence: pred.Confidence}, nil, nil
	}

	p, err := c.Participants.Get(req.ParticipantID)
	if err != nil {
		return pred, nil, err
	}
	caption := domain.NewCaption(req.RoomID, p.Name, pred.Label, pred.Confidence)
	if err := c.Repo.Append(caption); err != nil {
		return pred, nil, err
	}
	log.Info().Str("module", "app.captions").Str("room", string(req.RoomID)).Str("label", pred.Label).Float64("confidence", pred.Confidence).Msg("caption accepted")
	return pred, &caption, nil
}

func (c *Captions) Recent(room domain.RoomID) []domain.Caption {
	return c.Repo.Recent(room)
}

func (c *Captions) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultCaptionThreshold
	}
	return c.Threshold
}
