package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserHeader carries the caller identity. The relay trusts it as is;
	// authentication happens in front of it.
	UserHeader = "X-User-ID"
	userQuery  = "user_id"

	userIDContextKey = "auth_user_id"
)

// Middleware requires a caller identity and stores it in the context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := extractUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// UserIDFromContext retrieves the caller identity from the gin context.
func UserIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

func extractUserID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(UserHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query(userQuery))
}
