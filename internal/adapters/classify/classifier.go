// Package classify talks to the sign-recognition model runtime.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// HTTPClassifier posts frames to an external model runtime that answers
// {"label": ..., "confidence": ...}. An empty URL means no model is loaded.
type HTTPClassifier struct {
	URL  string
	HTTP *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{URL: strings.TrimSpace(url), HTTP: &http.Client{Timeout: timeout}}
}

var _ core.Classifier = (*HTTPClassifier)(nil)

var ErrModelNotLoaded = fmt.Errorf("%w: model not loaded", core.ErrClassificationFailed)

func (c *HTTPClassifier) Ready() bool { return c != nil && c.URL != "" }

type modelRequest struct {
	ImageData string `json:"image_data"`
}

type modelResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, req core.ClassifyRequest) (core.Prediction, error) {
	if !c.Ready() {
		return core.Prediction{}, ErrModelNotLoaded
	}
	b, err := json.Marshal(modelRequest{ImageData: req.ImageData})
	if err != nil {
		return core.Prediction{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return core.Prediction{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		return core.Prediction{}, fmt.Errorf("%w: %v", core.ErrClassificationFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.Prediction{}, fmt.Errorf("%w: model runtime replied %d", core.ErrClassificationFailed, resp.StatusCode)
	}

	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.Prediction{}, fmt.Errorf("%w: %v", core.ErrClassificationFailed, err)
	}
	log.Debug().Str("module", "classify").Str("room", string(req.RoomID)).Str("label", out.Label).
		Float64("confidence", out.Confidence).Dur("took", time.Since(start)).Msg("classified")
	return core.Prediction{Label: out.Label, Confidence: out.Confidence}, nil
}
