package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/storekit-cloud/storekit/internal/security"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// bindTenant simulates the resolver middleware binding an already-resolved
// tenant to the request.
func bindTenant(info *tenant.Info) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessor := tenant.NewAccessor()
		if errSet := accessor.SetTenant(info); errSet != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(ctxKeyTenantAccessor, accessor)
		c.Next()
	}
}

// bindClaims simulates the auth middleware loading validated claims.
func bindClaims(claims *security.UserClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxKeyUserClaims, claims)
		c.Next()
	}
}

func newOwnershipRouter(t *testing.T, info *tenant.Info, claims *security.UserClaims) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if info != nil {
		router.Use(bindTenant(info))
	}
	if claims != nil {
		router.Use(bindClaims(claims))
	}
	router.Use(TenantOwnershipMiddleware(nil))
	router.GET("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func runOwnershipRequest(router *gin.Engine) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestOwnershipGuardAllowsMatchingTenant(t *testing.T) {
	info := &tenant.Info{ID: testTenantID, Slug: "acme"}
	claims := &security.UserClaims{UserID: 7, TenantID: testTenantID, TenantSlug: "acme"}
	router := newOwnershipRouter(t, info, claims)

	if recorder := runOwnershipRequest(router); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", recorder.Code)
	}
}

func TestOwnershipGuardRejectsForeignTenantToken(t *testing.T) {
	info := &tenant.Info{ID: testTenantID, Slug: "acme"}
	claims := &security.UserClaims{UserID: 7, TenantID: testOtherTenantID, TenantSlug: "globex"}
	router := newOwnershipRouter(t, info, claims)

	recorder := runOwnershipRequest(router)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["code"] != "tenant_mismatch" {
		t.Fatalf("expected tenant_mismatch, got %v", body["code"])
	}
	if body["jwtTenant"] != "globex" || body["requestedTenant"] != "acme" {
		t.Fatalf("expected slugs echoed, got %v", body)
	}
}

func TestOwnershipGuardRejectsMalformedTenantClaim(t *testing.T) {
	info := &tenant.Info{ID: testTenantID, Slug: "acme"}
	claims := &security.UserClaims{UserID: 7, TenantID: "not-a-uuid", TenantSlug: "acme"}
	router := newOwnershipRouter(t, info, claims)

	if recorder := runOwnershipRequest(router); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", recorder.Code)
	}
}

func TestOwnershipGuardPassesLegacyTokenWithoutTenantClaim(t *testing.T) {
	info := &tenant.Info{ID: testTenantID, Slug: "acme"}
	claims := &security.UserClaims{UserID: 7}
	router := newOwnershipRouter(t, info, claims)

	if recorder := runOwnershipRequest(router); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected legacy token to pass, got %d", recorder.Code)
	}
}

func TestOwnershipGuardPassesGuestRequests(t *testing.T) {
	info := &tenant.Info{ID: testTenantID, Slug: "acme"}
	router := newOwnershipRouter(t, info, nil)

	if recorder := runOwnershipRequest(router); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected guest to pass, got %d", recorder.Code)
	}
}

func TestOwnershipGuardPassesUnresolvedRequests(t *testing.T) {
	claims := &security.UserClaims{UserID: 7, TenantID: testTenantID, TenantSlug: "acme"}
	router := newOwnershipRouter(t, nil, claims)

	if recorder := runOwnershipRequest(router); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected unresolved request to pass, got %d", recorder.Code)
	}
}
