package auth

import (
	"net/http"
	"strings"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

// Middleware отклоняет запросы без действующего токена и кладёт claims
// в контекст gin.
func Middleware(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthorized"})
			return
		}
		claims, err := issuer.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthorized"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole пропускает только перечисленные роли, ставится после Middleware
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	allowed := map[model.Role]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthorized"})
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "kind": "unauthorized"})
			return
		}
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
