// Package front exposes the tenant-facing API. Every route here runs behind
// the tenant resolver, so handlers always see a bound tenant context.
package front

import (
	"github.com/gin-gonic/gin"

	"github.com/storekit-cloud/storekit/internal/config"
	"github.com/storekit-cloud/storekit/internal/flags"
	relayhttp "github.com/storekit-cloud/storekit/internal/http"
	"github.com/storekit-cloud/storekit/internal/http/api/front/handlers"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// RegisterFrontRoutes registers public and authenticated tenant-facing routes
// under /api.
func RegisterFrontRoutes(r *gin.Engine, jwtCfg config.JWTConfig, factory *tenant.Factory, flagService *flags.Service) {
	if r == nil || factory == nil {
		return
	}

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(factory, jwtCfg)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(relayhttp.RequireUser())

	profileHandler := handlers.NewProfileHandler(factory)
	authed.GET("/profile", profileHandler.Get)
	authed.GET("/permissions", profileHandler.Permissions)

	featureHandler := handlers.NewFeatureHandler(flagService)
	authed.GET("/features", featureHandler.Get)

	catalogHandler := handlers.NewCatalogHandler(factory)
	authed.GET("/products", catalogHandler.List)
}
