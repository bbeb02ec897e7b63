package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/server/auth"
)

type AuthHandler struct {
	auth *auth.AuthService
}

func New(auth *auth.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
	}
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req httpstore.RefreshTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(fmt.Errorf("failed to bind json: %w", err))
		ctx.JSON(http.StatusBadRequest, &httpstore.APIError{
			Code:    httpstore.CodeInvalidRequest,
			Message: err.Error(),
		})
		return
	}

	accessToken, refreshToken, err := h.auth.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		ctx.Error(fmt.Errorf("failed to refresh token: %w", err))
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidRequestToken) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, &httpstore.APIError{
			Code:    httpstore.CodeTokenRefreshFailed,
			Message: err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, &httpstore.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}
