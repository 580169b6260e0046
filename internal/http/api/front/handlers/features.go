package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storekit-cloud/storekit/internal/flags"
	relayhttp "github.com/storekit-cloud/storekit/internal/http"
)

// FeatureHandler serves the resolved feature flags of the bound tenant.
type FeatureHandler struct {
	flagService *flags.Service
}

// NewFeatureHandler constructs a FeatureHandler.
func NewFeatureHandler(flagService *flags.Service) *FeatureHandler {
	return &FeatureHandler{flagService: flagService}
}

// Get returns the tenant's effective flags after layering plan defaults and
// per-tenant overrides.
func (h *FeatureHandler) Get(c *gin.Context) {
	info := relayhttp.BoundTenant(c)
	if info == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant required", "code": "tenant_required"})
		return
	}
	resolved, errGet := h.flagService.Get(c.Request.Context(), info.ID, info.PlanID)
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve flags failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": resolved})
}
