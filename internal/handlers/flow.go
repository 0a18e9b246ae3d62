package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/http/response"
	"github.com/yungbote/lessonflow-backend/internal/logger"
	apperrors "github.com/yungbote/lessonflow-backend/internal/pkg/errors"
	"github.com/yungbote/lessonflow-backend/internal/requestdata"
)

type FlowHandler struct {
	log      *logger.Logger
	registry *flow.Registry
}

func NewFlowHandler(log *logger.Logger, registry *flow.Registry) *FlowHandler {
	return &FlowHandler{
		log:      log.With("handler", "FlowHandler"),
		registry: registry,
	}
}

// POST /api/flows
func (h *FlowHandler) StartFlow(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req struct {
		LessonID  uuid.UUID `json:"lesson_id" binding:"required"`
		SessionID uuid.UUID `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	snap, err := h.registry.Start(userID, req.LessonID, req.SessionID)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flow": snap})
}

// POST /api/flows/:lessonID/events
func (h *FlowHandler) PostEvent(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Event   string         `json:"event" binding:"required"`
		Payload map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	ev, err := flow.BuildEvent(req.Event, req.Payload)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_event", err)
		return
	}

	if err := h.registry.HandleEvent(userID, lessonID, ev); err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"accepted": true})
}

// POST /api/flows/:lessonID/control
func (h *FlowHandler) Control(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}

	var req flow.ControlOp
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.registry.Control(userID, lessonID, req); err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"accepted": true})
}

// GET /api/flows/:lessonID
func (h *FlowHandler) GetFlow(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}

	snap, err := h.registry.GetSnapshot(userID, lessonID)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"flow": snap})
}

// DELETE /api/flows/:lessonID
func (h *FlowHandler) StopFlow(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}

	if err := h.registry.Stop(userID, lessonID); err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"stopped": true})
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func lessonIDParam(c *gin.Context) (uuid.UUID, bool) {
	lessonID, err := uuid.Parse(c.Param("lessonID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_lesson_id", err)
		return uuid.Nil, false
	}
	return lessonID, true
}

func respondFlowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperrors.ErrInvalidArgument):
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, apperrors.ErrSessionClosed):
		response.RespondError(c, http.StatusConflict, "session_closed", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
