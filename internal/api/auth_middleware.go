// internal/api/auth_middleware.go
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/JubenshaMCP/internal/auth"
)

// AuthMiddleware resolves the bearer credential into a user identity.
// Requests without a usable credential are downgraded to the anonymous
// identity instead of being rejected, so spectators can browse freely.
func AuthMiddleware(provider *auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := strings.TrimSpace(c.GetHeader("Authorization"))

		identity, err := provider.ResolveBearer(credential)
		if err != nil {
			c.Set("user_id", "anonymous")
			c.Set("user_authenticated", false)
			c.Set("auth_error", err.Error())
			c.Next()
			return
		}

		c.Set("user_id", identity.UserID)
		c.Set("user_authenticated", credential != "")
		c.Next()
	}
}

// RequireAuth rejects requests that did not present a valid credential.
// Used on destructive endpoints such as session deletion.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, authenticated := GetUserFromContext(c)
		if !authenticated || userID == "" || userID == "anonymous" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "需要有效的身份凭证",
				"code":    ErrorUnauthorized,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserFromContext retrieves the resolved user from the request context.
func GetUserFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", false
	}

	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		return "", false
	}

	if authenticatedVal, exists := c.Get("user_authenticated"); exists {
		if authenticated, ok := authenticatedVal.(bool); ok {
			return userIDStr, authenticated
		}
	}
	return userIDStr, false
}
