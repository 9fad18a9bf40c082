package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the opaque id of the authenticated caller.
const UserHeader = "X-User-ID"

const userIDKey = "userID"

// IdentityMiddleware requires a caller id and stores it in the context.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserHeader))
		if user == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing " + UserHeader + " header"})
			c.Abort()
			return
		}
		c.Set(userIDKey, user)
		c.Next()
	}
}

// UserID returns the caller id stored by IdentityMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
