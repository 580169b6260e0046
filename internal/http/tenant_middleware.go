package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// Routing-key input channels, highest precedence first.
const (
	// TenantHeader is the explicit tenant routing header.
	TenantHeader = "X-Tenant-Slug"
	// TenantQueryParam is the explicit tenant query parameter.
	TenantQueryParam = "tenant"
)

// TenantResolverMiddleware binds every non-exempt request to exactly one
// tenant before any business logic runs. Candidates are tried in precedence
// order: header, query parameter, host subdomain. Requests without a routing
// key are rejected unless the path is exempt.
func TenantResolverMiddleware(resolver *tenant.Resolver, exemptPrefixes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if resolver == nil || c == nil || c.Request == nil || c.Request.URL == nil {
			if c != nil {
				c.Next()
			}
			return
		}

		if isExemptPath(c.Request.URL.Path, exemptPrefixes) {
			c.Next()
			return
		}

		info, errResolve := resolver.Resolve(
			c.Request.Context(),
			c.GetHeader(TenantHeader),
			c.Query(TenantQueryParam),
			tenant.SlugFromHost(c.Request.Host),
		)
		if errResolve != nil {
			abortResolution(c, errResolve)
			return
		}

		accessor := tenant.NewAccessor()
		if errSet := accessor.SetTenant(info); errSet != nil {
			// Two resolution passes disagreeing is a programming error.
			log.WithError(errSet).Errorf("tenant middleware: rebind attempt (tenant=%s)", info.Slug)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant binding error"})
			return
		}
		c.Set(ctxKeyTenantAccessor, accessor)
		c.Next()
	}
}

// abortResolution maps resolution failures to client-facing error bodies.
// They never reach business logic as ambiguous nils.
func abortResolution(c *gin.Context, errResolve error) {
	switch {
	case errors.Is(errResolve, tenant.ErrNoRoutingKey):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "tenant required",
			"code":  "tenant_required",
		})
	case errors.Is(errResolve, tenant.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": "tenant not found",
			"code":  "tenant_not_found",
		})
	default:
		if notReady, ok := tenant.IsNotReady(errResolve); ok {
			c.AbortWithStatusJSON(http.StatusLocked, gin.H{
				"error":  "tenant locked",
				"code":   "tenant_locked",
				"status": string(notReady.Status),
			})
			return
		}
		log.WithError(errResolve).Error("tenant middleware: resolution error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant resolution error"})
	}
}
