package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key holding the authenticated username.
const UserKey = "auth_user"

// GinBasicAuth returns a Gin middleware that requires valid basic
// credentials. A nil authenticator lets every request through.
func GinBasicAuth(b *Basic) gin.HandlerFunc {
	return func(c *gin.Context) {
		if b == nil {
			c.Next()
			return
		}
		username, password, ok := c.Request.BasicAuth()
		if !ok || b.Authenticate(username, password) != nil {
			c.Header("WWW-Authenticate", `Basic realm="appconnect"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"kind":  "unauthorized",
			})
			return
		}
		c.Set(UserKey, username)
		c.Next()
	}
}
