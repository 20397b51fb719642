package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"essay-corrector-backend/internal/models"
	"essay-corrector-backend/internal/services"
)

type ProcessHandler struct {
	essays *services.EssayService
}

func NewProcessHandler(essays *services.EssayService) *ProcessHandler {
	return &ProcessHandler{essays: essays}
}

// Transcribe godoc
// @Summary     Transcribe an exam paper
// @Description Transcribes every page with the vision model. Billed once, only when every page succeeds.
// @Tags        processing
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Exam paper ID"
// @Success     200 {object} models.ExamPaperResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /exam_papers/{id}/transcribe [post]
func (h *ProcessHandler) Transcribe(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := paperID(c)
	if !ok {
		return
	}

	paper, err := h.essays.TranscribeExamPaper(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperResponse(paper))
}

// Correct godoc
// @Summary     Correct an exam paper
// @Description Generates feedback for the transcribed text
// @Tags        processing
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Exam paper ID"
// @Success     200 {object} models.ExamPaperResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /exam_papers/{id}/correct [post]
func (h *ProcessHandler) Correct(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := paperID(c)
	if !ok {
		return
	}

	paper, err := h.essays.CorrectExamPaper(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperResponse(paper))
}

// UpdateTranscribedText godoc
// @Summary     Edit the transcription
// @Description Replaces the transcribed text. A paper not yet transcribed moves to transcribed without billing.
// @Tags        processing
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id   path int                                 true "Exam paper ID"
// @Param       body body models.UpdateTranscribedTextRequest true "New text"
// @Success     200 {object} models.ExamPaperResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /exam_papers/{id}/transcribed_text [put]
func (h *ProcessHandler) UpdateTranscribedText(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := paperID(c)
	if !ok {
		return
	}

	var req models.UpdateTranscribedTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "transcribed_text is required",
		})
		return
	}

	paper, err := h.essays.UpdateTranscribedText(c.Request.Context(), uid, id, *req.TranscribedText)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperResponse(paper))
}
