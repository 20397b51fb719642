package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"essay-corrector-backend/internal/models"
)

const UserKey = "user"

type UserEnsurer interface {
	EnsureUser(ctx context.Context, userID, email string) (*models.User, error)
}

// EnsureUser creates the local user row for the authenticated subject on
// first sight. It must run after AuthMiddleware.
func EnsureUser(users UserEnsurer, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			abortUnauthorized(c, "missing user id")
			return
		}

		user, err := users.EnsureUser(c.Request.Context(), userID, c.GetString(UserEmailKey))
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Error("failed to ensure user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "internal_error",
				Message: "failed to load user",
			})
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}
