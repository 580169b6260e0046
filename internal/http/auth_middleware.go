package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storekit-cloud/storekit/internal/config"
	"github.com/storekit-cloud/storekit/internal/security"
)

// UserAuthMiddleware validates user JWTs and loads the claims into context.
// Requests without an Authorization header are rejected; use
// OptionalUserAuthMiddleware on surfaces that allow guest access.
func UserAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxKeyUserClaims, claims)
		c.Next()
	}
}

// OptionalUserAuthMiddleware loads claims when a valid token is present and
// lets guest requests through. A token that is present but invalid is still
// rejected rather than silently downgraded to guest.
func OptionalUserAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxKeyUserClaims, claims)
		c.Next()
	}
}

// RequireUser rejects requests that reached a protected route without claims
// loaded by an upstream auth middleware.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserClaims(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// bearerToken extracts a non-empty bearer token from the request.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
