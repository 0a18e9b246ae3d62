package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonflow-backend/internal/http/response"
	"github.com/yungbote/lessonflow-backend/internal/services"
)

type LessonHandler struct {
	lessonService services.LessonService
}

func NewLessonHandler(lessonService services.LessonService) *LessonHandler {
	return &LessonHandler{lessonService: lessonService}
}

// POST /api/lessons
func (h *LessonHandler) CreateLesson(c *gin.Context) {
	var req services.CreateLessonInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	lesson, err := h.lessonService.Create(c.Request.Context(), req)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lesson": lesson})
}

// GET /api/lessons
func (h *LessonHandler) ListLessons(c *gin.Context) {
	lessons, err := h.lessonService.List(c.Request.Context())
	if err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lessons": lessons})
}

// GET /api/lessons/:lessonID
func (h *LessonHandler) GetLesson(c *gin.Context) {
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}

	lesson, err := h.lessonService.GetByID(c.Request.Context(), lessonID)
	if err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": lesson})
}

// DELETE /api/lessons/:lessonID
func (h *LessonHandler) DeleteLesson(c *gin.Context) {
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}

	if err := h.lessonService.Delete(c.Request.Context(), lessonID); err != nil {
		respondFlowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}
