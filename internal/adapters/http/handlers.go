package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/SignMeet/internal/app"
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionParticipantKey = "participant_id"

type handlers struct {
	orch *app.Orchestrator
}

type CreateRoomRequest struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"max_participants"`
}

type JoinRequest struct {
	Name string `json:"name"`
}

type LeaveRequest struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

type PredictResponse struct {
	PredictedText *string `json:"predicted_text"`
	Confidence    float64 `json:"confidence"`
}

func detail(c *gin.Context, code int, text string) {
	c.JSON(code, gin.H{"detail": text})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":      "SignMeet API is running!",
		"model_loaded": h.orch.Captions.Ready(),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Rooms.List())
}

func (h *handlers) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	room, err := h.orch.Rooms.CreateRoom(c.Request.Context(), req.Name, req.MaxParticipants)
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) getRoom(c *gin.Context) {
	room, err := h.orch.Rooms.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		detail(c, http.StatusNotFound, "Room not found")
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) joinRoom(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	p, err := h.orch.Rooms.JoinRoom(c.Request.Context(), domain.RoomID(c.Param("id")), req.Name)
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		detail(c, http.StatusNotFound, "Room not found")
		return
	case errors.Is(err, core.ErrRoomFull):
		detail(c, http.StatusBadRequest, "Room is full")
		return
	case err != nil:
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	s := sessions.Default(c)
	s.Set(sessionParticipantKey, string(p.ID))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}

	h.orch.AnnounceParticipant(p)
	log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).
		Str("room", string(p.RoomID)).Str("participant", string(p.ID)).Msg("participant joined")
	c.JSON(http.StatusOK, p)
}

// leaveRoom frees a slot. The participant id comes from the body, or from
// the cookie session when the body names none.
func (h *handlers) leaveRoom(c *gin.Context) {
	var req LeaveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			detail(c, http.StatusUnprocessableEntity, "invalid body")
			return
		}
	}
	s := sessions.Default(c)
	if req.ParticipantID == "" {
		if pid, ok := s.Get(sessionParticipantKey).(string); ok {
			req.ParticipantID = domain.ParticipantID(pid)
		}
	}
	if req.ParticipantID == "" {
		detail(c, http.StatusUnprocessableEntity, "participant_id is required")
		return
	}

	room := domain.RoomID(c.Param("id"))
	err := h.orch.LeaveParticipant(c.Request.Context(), room, req.ParticipantID)
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		detail(c, http.StatusNotFound, "Room not found")
		return
	case errors.Is(err, core.ErrParticipantNotFound):
		detail(c, http.StatusNotFound, "Participant not found")
		return
	case err != nil:
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	if pid, _ := s.Get(sessionParticipantKey).(string); pid == string(req.ParticipantID) {
		s.Delete(sessionParticipantKey)
		if err := s.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}
	}
	log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).
		Str("room", string(room)).Str("participant", string(req.ParticipantID)).Msg("participant left")
	c.JSON(http.StatusOK, gin.H{"detail": "left"})
}

func (h *handlers) me(c *gin.Context) {
	pid, _ := sessions.Default(c).Get(sessionParticipantKey).(string)
	if pid == "" {
		detail(c, http.StatusNotFound, "Participant not found")
		return
	}
	p, err := h.orch.Rooms.Participant(domain.ParticipantID(pid))
	if err != nil {
		detail(c, http.StatusNotFound, "Participant not found")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) captions(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Captions.Recent(domain.RoomID(c.Param("id"))))
}

func (h *handlers) predict(c *gin.Context) {
	var req core.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if req.ParticipantID == "" {
		if pid, ok := sessions.Default(c).Get(sessionParticipantKey).(string); ok {
			req.ParticipantID = domain.ParticipantID(pid)
		}
	}
	if req.ImageData == "" || req.RoomID == "" || req.ParticipantID == "" {
		detail(c, http.StatusUnprocessableEntity, "image_data, room_id and participant_id are required")
		return
	}

	pred, err := h.orch.Predict(c.Request.Context(), req)
	switch {
	case errors.Is(err, core.ErrParticipantNotFound):
		detail(c, http.StatusNotFound, "Participant not found")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(req.RoomID)).Msg("prediction error")
		detail(c, http.StatusInternalServerError, "Prediction failed")
		return
	}

	resp := PredictResponse{Confidence: pred.Confidence}
	if pred.Recognized() {
		label := pred.Label
		resp.PredictedText = &label
	}
	c.JSON(http.StatusOK, resp)
}
