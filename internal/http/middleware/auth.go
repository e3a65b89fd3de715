// README: Auth middleware: verifies the bearer token and exposes the caller's uid and role.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

// RoleLookup resolves a role for callers whose token carries no role claim.
type RoleLookup func(ctx context.Context, uid string) (string, error)

func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		c.Next()
	}
}

// ResolveRole fills in the caller's role from lookup when the token had none.
// Lookup failures leave the role empty.
func ResolveRole(lookup RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) == "" && CallerUID(c) != "" {
			if role, err := lookup(c.Request.Context(), CallerUID(c)); err == nil {
				c.Set(ctxRole, role)
			}
		}
		c.Next()
	}
}

// RequireRole rejects callers without the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": role + " role required"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
