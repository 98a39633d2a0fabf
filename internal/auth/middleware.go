package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ownerKey = "owner_id"

// OwnerAuth enforces bearer tokens and stores the teacher id on the context.
// A missing token is 401; a token that fails validation is 403.
func OwnerAuth(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "No token provided"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := issuer.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Invalid token"})
			return
		}
		c.Set(ownerKey, claims.Subject)
		c.Next()
	}
}

// OwnerID returns the authenticated teacher id set by OwnerAuth.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
