package middlewares

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/server/auth"
)

const (
	bearerPrefix   = "Bearer "
	authHeader     = "Authorization"
	UserContextKey = "user"
)

// JWTAuth validates the bearer access token and stores its subject under
// UserContextKey. It is a no-op when auth is disabled.
func JWTAuth(authService *auth.AuthService) gin.HandlerFunc {
	if !authService.IsEnabled() {
		slog.Info("auth middleware disabled")
		return func(ctx *gin.Context) {
			ctx.Next()
		}
	}
	slog.Info("auth middleware enabled")
	return func(ctx *gin.Context) {
		authHeaderValue := ctx.GetHeader(authHeader)
		if authHeaderValue == "" {
			abortUnauthorized(ctx, "Authorization header is missing")
			return
		}

		if !strings.HasPrefix(authHeaderValue, bearerPrefix) {
			abortUnauthorized(ctx, "Authorization header format must be Bearer {token}")
			return
		}

		tokenString := strings.TrimPrefix(authHeaderValue, bearerPrefix)
		if tokenString == "" {
			abortUnauthorized(ctx, "Token is missing")
			return
		}

		claims, err := authService.ValidateAccessToken(ctx, tokenString)
		if err != nil {
			abortUnauthorized(ctx, err.Error())
			return
		}

		ctx.Set(UserContextKey, claims.Subject)
		ctx.Next()
	}
}

func abortUnauthorized(ctx *gin.Context, msg string) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, &httpstore.APIError{
		Code:    httpstore.CodeInvalidCredentials,
		Message: msg,
	})
}
