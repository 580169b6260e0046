// Package http carries the request middleware chain: tenant resolution,
// authentication, and the tenant ownership guard, in that order.
package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storekit-cloud/storekit/internal/security"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// Gin context keys set by the middleware chain.
const (
	ctxKeyTenantAccessor = "tenantAccessor"
	ctxKeyUserClaims     = "userClaims"
)

// TenantAccessor returns the request's tenant accessor, or nil when the
// resolver middleware did not bind one.
func TenantAccessor(c *gin.Context) *tenant.Accessor {
	if c == nil {
		return nil
	}
	val, exists := c.Get(ctxKeyTenantAccessor)
	if !exists {
		return nil
	}
	accessor, ok := val.(*tenant.Accessor)
	if !ok {
		return nil
	}
	return accessor
}

// BoundTenant returns the tenant bound to the request, or nil.
func BoundTenant(c *gin.Context) *tenant.Info {
	accessor := TenantAccessor(c)
	if accessor == nil {
		return nil
	}
	return accessor.TenantInfo()
}

// UserClaims returns the authenticated principal's claims, or nil for guest
// requests.
func UserClaims(c *gin.Context) *security.UserClaims {
	if c == nil {
		return nil
	}
	val, exists := c.Get(ctxKeyUserClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*security.UserClaims)
	if !ok {
		return nil
	}
	return claims
}

// hasPathPrefix checks a prefix match on a path boundary.
func hasPathPrefix(path string, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/'
}

// isExemptPath reports whether a path is on the exemption list.
func isExemptPath(path string, exemptPrefixes []string) bool {
	for _, prefix := range exemptPrefixes {
		if hasPathPrefix(path, prefix) {
			return true
		}
	}
	return false
}
