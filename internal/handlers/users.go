package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"essay-corrector-backend/internal/middleware"
	"essay-corrector-backend/internal/models"
	"essay-corrector-backend/internal/services"
)

type UsersHandler struct {
	essays *services.EssayService
}

func NewUsersHandler(essays *services.EssayService) *UsersHandler {
	return &UsersHandler{essays: essays}
}

// Me godoc
// @Summary     Current user
// @Description Returns the caller's identity, paper quota and credit balance
// @Tags        users
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.UserStatusResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /users/me/ [get]
func (h *UsersHandler) Me(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	st, err := h.essays.GetUserStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	email := c.GetString(middleware.UserEmailKey)
	if email == "" && st.User.Email.Valid {
		email = st.User.Email.String
	}

	c.JSON(http.StatusOK, models.UserStatusResponse{
		ID:                st.User.ID,
		Email:             email,
		Role:              c.GetString(middleware.UserRoleKey),
		CurrentPaperCount: st.PaperCount,
		MaxPaperQuota:     st.MaxPapers,
		Credits:           st.User.Credits,
	})
}
