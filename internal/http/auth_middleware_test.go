package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storekit-cloud/storekit/internal/config"
	"github.com/storekit-cloud/storekit/internal/security"
)

const testJWTSecret = "unit-test-secret"

func newAuthRouter(t *testing.T, middleware gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware)
	router.GET("/*path", func(c *gin.Context) {
		if claims := UserClaims(c); claims != nil {
			c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
			return
		}
		c.Status(http.StatusNoContent)
	})
	return router
}

func runAuthRequest(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestUserAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	router := newAuthRouter(t, UserAuthMiddleware(config.JWTConfig{Secret: testJWTSecret}))

	if recorder := runAuthRequest(router, ""); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", recorder.Code)
	}
}

func TestUserAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	router := newAuthRouter(t, UserAuthMiddleware(config.JWTConfig{Secret: testJWTSecret}))

	if recorder := runAuthRequest(router, "Bearer garbage"); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", recorder.Code)
	}
}

func TestUserAuthMiddlewareLoadsClaims(t *testing.T) {
	token, errToken := security.GenerateToken(testJWTSecret, 42, "owner@acme.test", "Owner", testTenantID, "acme", time.Hour)
	if errToken != nil {
		t.Fatalf("generate token: %v", errToken)
	}
	router := newAuthRouter(t, UserAuthMiddleware(config.JWTConfig{Secret: testJWTSecret}))

	recorder := runAuthRequest(router, "Bearer "+token)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["user_id"] != float64(42) {
		t.Fatalf("expected user 42 loaded, got %v", body["user_id"])
	}
}

func TestOptionalUserAuthMiddlewareAllowsGuests(t *testing.T) {
	router := newAuthRouter(t, OptionalUserAuthMiddleware(config.JWTConfig{Secret: testJWTSecret}))

	if recorder := runAuthRequest(router, ""); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected guest pass-through, got %d", recorder.Code)
	}
}

func TestOptionalUserAuthMiddlewareStillRejectsBadTokens(t *testing.T) {
	router := newAuthRouter(t, OptionalUserAuthMiddleware(config.JWTConfig{Secret: testJWTSecret}))

	if recorder := runAuthRequest(router, "Bearer garbage"); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", recorder.Code)
	}
}
