package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"essay-corrector-backend/internal/models"
	"essay-corrector-backend/internal/services"
)

type UploadHandler struct {
	essays *services.EssayService
}

func NewUploadHandler(essays *services.EssayService) *UploadHandler {
	return &UploadHandler{essays: essays}
}

// UploadMultipleImages godoc
// @Summary     Upload an exam paper
// @Description Creates an exam paper from one or more page images. Pages are numbered in upload order.
// @Tags        exam_papers
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       files formData file   true  "Page images (multiple files allowed)"
// @Param       title formData string false "Paper title, defaults to the first file name"
// @Success     200 {object} models.ExamPaperResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     413 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /exam_papers/upload_multiple_images/ [post]
func (h *UploadHandler) UploadMultipleImages(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "expected multipart form with files",
		})
		return
	}

	headers := form.File["files"]
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFile(fh))
	}

	paper, err := h.essays.UploadExamPaper(c.Request.Context(), uid, c.PostForm("title"), files)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewExamPaperResponse(paper))
}

func uploadFile(fh *multipart.FileHeader) services.UploadFile {
	return services.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
