package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"essay-corrector-backend/internal/middleware"
	"essay-corrector-backend/internal/models"
	"essay-corrector-backend/internal/services"
)

// respondError maps a service error onto its HTTP status.
func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, services.ErrInsufficientCredits):
		status, code = http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, services.ErrBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, services.ErrPayloadTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, services.ErrStorageUnavailable):
		status, code = http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, services.ErrAIFailure):
		code = "ai_failure"
	}

	_ = c.Error(err)
	c.JSON(status, models.ErrorResponse{Error: code, Message: err.Error()})
}

func paperID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "invalid exam paper id",
		})
		return 0, false
	}
	return id, true
}

func userID(c *gin.Context) (string, bool) {
	id := middleware.GetUserID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: "user id not found"})
		return "", false
	}
	return id, true
}
