package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TenantOwnershipMiddleware enforces the core security invariant: a token
// minted for tenant A is never honored against tenant B's resolved context.
// It runs after authentication and before business logic on every path not on
// the exemption list.
func TenantOwnershipMiddleware(exemptPrefixes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c == nil || c.Request == nil || c.Request.URL == nil {
			if c != nil {
				c.Next()
			}
			return
		}
		if isExemptPath(c.Request.URL.Path, exemptPrefixes) {
			c.Next()
			return
		}

		info := BoundTenant(c)
		claims := UserClaims(c)
		// Guest and unresolved requests are legitimate; the resolver decides
		// whether a tenant was required.
		if info == nil || claims == nil {
			c.Next()
			return
		}

		// Legacy tokens predate tenant binding; their absence of a claim is
		// itself auditable.
		if strings.TrimSpace(claims.TenantID) == "" {
			log.WithField("audit", true).
				Warnf("ownership guard: token without tenant claim (user=%d tenant=%s)", claims.UserID, info.Slug)
			c.Next()
			return
		}

		if _, errParse := uuid.Parse(claims.TenantID); errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if claims.TenantID != info.ID {
			// Both slugs are echoed for diagnosability; secrets never are.
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":           "token/tenant mismatch",
				"code":            "tenant_mismatch",
				"jwtTenant":       claims.TenantSlug,
				"requestedTenant": info.Slug,
			})
			return
		}

		c.Next()
	}
}
