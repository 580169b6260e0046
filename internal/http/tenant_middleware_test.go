package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/tenant"
	"github.com/storekit-cloud/storekit/internal/vault"
)

const (
	testTenantID      = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	testOtherTenantID = "6ba7b811-9dad-11d1-80b4-00c04fd430c8"
)

func newTestResolver(t *testing.T) (*tenant.Resolver, *gorm.DB, *vault.Vault) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Tenant{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	v, errVault := vault.New([]byte("0123456789abcdef0123456789abcdef"), "tenant-connection-string")
	if errVault != nil {
		t.Fatalf("new vault: %v", errVault)
	}
	return tenant.NewResolver(conn, v), conn, v
}

func seedTenantRow(t *testing.T, conn *gorm.DB, v *vault.Vault, id, slug string, status models.TenantStatus) {
	t.Helper()
	encrypted, errProtect := v.Protect("file:/tmp/" + slug + ".db")
	if errProtect != nil {
		t.Fatalf("protect: %v", errProtect)
	}
	row := models.Tenant{
		ID:           id,
		Slug:         slug,
		Name:         slug,
		DatabaseName: "tenant_" + slug,
		Status:       status,
		EncryptedDSN: encrypted,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create tenant: %v", errCreate)
	}
}

func newResolverRouter(t *testing.T, resolver *tenant.Resolver, exempt []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantResolverMiddleware(resolver, exempt))
	router.GET("/*path", func(c *gin.Context) {
		info := BoundTenant(c)
		if info == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"slug": info.Slug})
	})
	return router
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode body: %v", errDecode)
	}
	return body
}

func TestTenantResolverMiddlewareRejectsMissingRoutingKey(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	router := newResolverRouter(t, resolver, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Host = "app.example.com"
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["code"] != "tenant_required" {
		t.Fatalf("expected tenant_required, got %v", body["code"])
	}
}

func TestTenantResolverMiddlewareRejectsUnknownTenant(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	router := newResolverRouter(t, resolver, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(TenantHeader, "ghost")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", recorder.Code)
	}
}

func TestTenantResolverMiddlewareLocksNonActiveTenant(t *testing.T) {
	resolver, conn, v := newTestResolver(t)
	seedTenantRow(t, conn, v, testTenantID, "acme", models.TenantStatusSeeding)
	router := newResolverRouter(t, resolver, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(TenantHeader, "acme")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusLocked {
		t.Fatalf("expected status 423, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["status"] != string(models.TenantStatusSeeding) {
		t.Fatalf("expected seeding status echoed, got %v", body["status"])
	}
}

func TestTenantResolverMiddlewareBindsActiveTenantFromHeader(t *testing.T) {
	resolver, conn, v := newTestResolver(t)
	seedTenantRow(t, conn, v, testTenantID, "acme", models.TenantStatusActive)
	router := newResolverRouter(t, resolver, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(TenantHeader, "acme")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if body := decodeBody(t, recorder); body["slug"] != "acme" {
		t.Fatalf("expected acme bound, got %v", body["slug"])
	}
}

func TestTenantResolverMiddlewareHeaderBeatsHostSubdomain(t *testing.T) {
	resolver, conn, v := newTestResolver(t)
	seedTenantRow(t, conn, v, testTenantID, "acme", models.TenantStatusActive)
	seedTenantRow(t, conn, v, testOtherTenantID, "globex", models.TenantStatusActive)
	router := newResolverRouter(t, resolver, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Host = "globex.example.com"
	req.Header.Set(TenantHeader, "acme")
	router.ServeHTTP(recorder, req)

	if body := decodeBody(t, recorder); body["slug"] != "acme" {
		t.Fatalf("expected header to win, got %v", body["slug"])
	}
}

func TestTenantResolverMiddlewareBindsFromHostSubdomain(t *testing.T) {
	resolver, conn, v := newTestResolver(t)
	seedTenantRow(t, conn, v, testTenantID, "acme", models.TenantStatusActive)
	router := newResolverRouter(t, resolver, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Host = "acme.storekit.example:8080"
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
}

func TestTenantResolverMiddlewareSkipsExemptPaths(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	router := newResolverRouter(t, resolver, []string{"/healthz", "/v0/admin"})

	for _, path := range []string{"/healthz", "/v0/admin/tenants"} {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected %s to pass unbound, got %d", path, recorder.Code)
		}
	}

	// A prefix match must respect path boundaries.
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthzz", nil)
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected /healthzz to require a tenant, got %d", recorder.Code)
	}
}
