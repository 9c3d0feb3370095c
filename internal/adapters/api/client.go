// Package api is the participant's REST client for the coordination server.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	json "github.com/goccy/go-json"
)

const defaultTimeout = 10 * time.Second

// Client implements core.Membership and core.Classifier over the /api routes.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

var (
	_ core.Membership = (*Client)(nil)
	_ core.Classifier = (*Client)(nil)
)

// StatusError is a non-2xx reply carrying the server's detail text.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Code, e.Detail)
}

type createRoomRequest struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type leaveRequest struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

type predictResponse struct {
	PredictedText string  `json:"predicted_text"`
	Confidence    float64 `json:"confidence"`
}

type Health struct {
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/", nil, &out); err != nil {
		return nil, core.NewOpError("health", err)
	}
	return &out, nil
}

func (c *Client) CreateRoom(ctx context.Context, name string, capacity int) (*domain.Room, error) {
	var out domain.Room
	if err := c.do(ctx, http.MethodPost, "/api/rooms", createRoomRequest{Name: name, MaxParticipants: capacity}, &out); err != nil {
		return nil, core.NewOpError("create room", err)
	}
	return &out, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]core.RoomInfo, error) {
	var out []core.RoomInfo
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &out); err != nil {
		return nil, core.NewOpError("list rooms", err)
	}
	return out, nil
}

func (c *Client) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var out domain.Room
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(string(id)), nil, &out); err != nil {
		return nil, core.NewOpError("get room", err)
	}
	return &out, nil
}

func (c *Client) JoinRoom(ctx context.Context, id domain.RoomID, name string) (*domain.Participant, error) {
	var out domain.Participant
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(string(id))+"/join", joinRequest{Name: name}, &out); err != nil {
		return nil, core.NewOpError("join room", err)
	}
	return &out, nil
}

func (c *Client) LeaveRoom(ctx context.Context, id domain.RoomID, pid domain.ParticipantID) error {
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(string(id))+"/leave", leaveRequest{ParticipantID: pid}, nil); err != nil {
		return core.NewOpError("leave room", err)
	}
	return nil
}

// Captions returns the room's recent captions, newest first.
func (c *Client) Captions(ctx context.Context, id domain.RoomID) ([]domain.Caption, error) {
	var out []domain.Caption
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(string(id))+"/captions", nil, &out); err != nil {
		return nil, core.NewOpError("captions", err)
	}
	return out, nil
}

// Classify posts one frame to /api/predict. The server broadcasts accepted
// captions itself; the returned prediction is informational.
func (c *Client) Classify(ctx context.Context, req core.ClassifyRequest) (core.Prediction, error) {
	var out predictResponse
	if err := c.do(ctx, http.MethodPost, "/api/predict", req, &out); err != nil {
		return core.Prediction{}, core.NewOpError("predict", err)
	}
	return core.Prediction{Label: out.PredictedText, Confidence: out.Confidence}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &detail); err != nil || detail.Detail == "" {
		detail.Detail = strings.TrimSpace(string(raw))
	}
	se := &StatusError{Code: resp.StatusCode, Detail: detail.Detail}

	switch {
	case resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(detail.Detail), "room"):
		return fmt.Errorf("%w: %s", core.ErrRoomNotFound, se)
	case resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(detail.Detail), "participant"):
		return fmt.Errorf("%w: %s", core.ErrParticipantNotFound, se)
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(detail.Detail, "full"):
		return fmt.Errorf("%w: %s", core.ErrRoomFull, se)
	}
	return se
}
