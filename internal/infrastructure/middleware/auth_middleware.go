package middleware

import (
	"strings"

	"livecast/internal/core/domain"
	"livecast/internal/core/services"
	"livecast/pkg/errors"
	"livecast/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

func bearer(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, claims *services.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUsername, claims.Username)
	ctx := logger.WithUserID(c.Request.Context(), string(claims.UserID))
	c.Request = c.Request.WithContext(ctx)
}

// AuthMiddleware requires a valid access token.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			AbortWithAppError(c, errors.NewUnauthorizedError("authorization header required"))
			return
		}

		token, ok := bearer(c)
		if !ok {
			AbortWithAppError(c, errors.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			AbortWithAppError(c, errors.NewUnauthorizedError(err.Error()))
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// UserID returns the identity set by the auth middleware.
func UserID(c *gin.Context) (domain.UserID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok
}
