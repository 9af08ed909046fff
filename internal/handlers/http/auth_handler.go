package http

import (
	"net/http"
	"strings"

	"livecast/internal/core/ports"
	"livecast/internal/core/services"
	"livecast/pkg/errors"
	"livecast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues tokens for the WebSocket endpoint. It stands in for
// an external identity service: any well-formed login is accepted and maps
// to a stable user id.
type AuthHandler struct {
	authService services.AuthService
}

var _ ports.AuthHTTPHandler = (*AuthHandler)(nil)

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/login", h.Login)
		api.POST("/refresh", h.Refresh)
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=128"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

type TokenResponse struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func tokenResponse(claims *services.Claims, pair services.TokenPair) TokenResponse {
	return TokenResponse{
		UserID:       string(claims.UserID),
		Username:     claims.Username,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validation.ValidateLogin(req.Username); err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	identity := h.authService.IdentityForLogin(req.Username)
	pair, err := h.authService.IssueTokens(identity)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, tokenResponse(&services.Claims{UserID: identity.UserID, Username: identity.Username}, pair))
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	pair, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeUnauthorized, "invalid refresh token", http.StatusUnauthorized))
		return
	}

	claims, err := h.authService.ValidateToken(pair.AccessToken)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, tokenResponse(claims, pair))
}
