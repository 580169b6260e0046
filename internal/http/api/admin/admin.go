// Package admin exposes the control-plane operator API: tenant registration,
// provisioning control, plan and feature-flag management.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/config"
	"github.com/storekit-cloud/storekit/internal/flags"
	"github.com/storekit-cloud/storekit/internal/http/api/admin/handlers"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/provision"
	"github.com/storekit-cloud/storekit/internal/security"
	"github.com/storekit-cloud/storekit/internal/vault"
)

// RegisterAdminRoutes registers the operator API under /v0/admin.
func RegisterAdminRoutes(
	r *gin.Engine,
	db *gorm.DB,
	jwtCfg config.JWTConfig,
	v *vault.Vault,
	creator provision.Creator,
	worker *provision.Worker,
	flagService *flags.Service,
) {
	if r == nil || db == nil {
		return
	}

	group := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	tenantHandler := handlers.NewTenantHandler(db, v, creator, worker, flagService)
	authed.POST("/tenants", tenantHandler.Create)
	authed.GET("/tenants", tenantHandler.List)
	authed.GET("/tenants/:id", tenantHandler.Get)
	authed.POST("/tenants/:id/retry", tenantHandler.Retry)
	authed.PUT("/tenants/:id/plan", tenantHandler.AssignPlan)
	authed.PUT("/tenants/:id/flags/:key", tenantHandler.SetFeatureOverride)
	authed.DELETE("/tenants/:id/flags/:key", tenantHandler.DeleteFeatureOverride)
	authed.GET("/tenants/:id/flags", tenantHandler.EffectiveFlags)

	planHandler := handlers.NewPlanHandler(db)
	authed.POST("/plans", planHandler.Create)
	authed.GET("/plans", planHandler.List)
	authed.PUT("/plans/:id", planHandler.Update)
}

// adminAuthMiddleware validates operator JWTs and checks the account is still
// active on every request.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" || token == strings.TrimSpace(authHeader) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
