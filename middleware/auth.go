package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextEmailKey stores the account email inside Gin context.
	ContextEmailKey = "email"
	// ContextTokenKey stores the raw bearer token, used by logout.
	ContextTokenKey = "token"
)

// AuthRequired ensures the request is authenticated via JWT.
// Browsers cannot set headers on websocket upgrades, so an access_token query parameter is accepted too.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var tokenString string
		authHeader := ctx.GetHeader("Authorization")
		switch {
		case authHeader != "":
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				utils.Abort(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
				return
			}
			tokenString = strings.TrimSpace(parts[1])
			if tokenString == "" {
				utils.Abort(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
				return
			}
		case ctx.Query("access_token") != "":
			tokenString = ctx.Query("access_token")
		default:
			utils.Abort(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			return
		}

		if utils.IsTokenBlacklisted(tokenString) {
			utils.Abort(ctx, http.StatusUnauthorized, 40104, "token revoked")
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Set(ContextTokenKey, tokenString)
		ctx.Next()
	}
}
