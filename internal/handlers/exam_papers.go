package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"essay-corrector-backend/internal/models"
	"essay-corrector-backend/internal/services"
)

type ExamPapersHandler struct {
	essays *services.EssayService
}

func NewExamPapersHandler(essays *services.EssayService) *ExamPapersHandler {
	return &ExamPapersHandler{essays: essays}
}

// ListExamPapers godoc
// @Summary     List exam papers
// @Description Lists the caller's exam papers, newest first
// @Tags        exam_papers
// @Produce     json
// @Security    Bearer
// @Success     200 {array}  models.ExamPaperResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /exam_papers/ [get]
func (h *ExamPapersHandler) ListExamPapers(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	papers, err := h.essays.ListExamPapers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperListResponse(papers))
}

// GetExamPaper godoc
// @Summary     Get exam paper
// @Tags        exam_papers
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Exam paper ID"
// @Success     200 {object} models.ExamPaperResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /exam_papers/{id} [get]
func (h *ExamPapersHandler) GetExamPaper(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := paperID(c)
	if !ok {
		return
	}

	paper, err := h.essays.GetExamPaper(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperResponse(paper))
}

// DeleteExamPaper godoc
// @Summary     Delete exam paper
// @Description Deletes the paper with its page images and returns the deleted record
// @Tags        exam_papers
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Exam paper ID"
// @Success     200 {object} models.ExamPaperResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /exam_papers/{id} [delete]
func (h *ExamPapersHandler) DeleteExamPaper(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := paperID(c)
	if !ok {
		return
	}

	paper, err := h.essays.DeleteExamPaper(c.Request.Context(), uid, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperResponse(paper))
}
