package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	relayhttp "github.com/storekit-cloud/storekit/internal/http"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// CatalogHandler serves the tenant's product catalog.
type CatalogHandler struct {
	factory *tenant.Factory
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(factory *tenant.Factory) *CatalogHandler {
	return &CatalogHandler{factory: factory}
}

// List returns the catalog rows in the bound tenant's database.
func (h *CatalogHandler) List(c *gin.Context) {
	info := relayhttp.BoundTenant(c)
	if info == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant required", "code": "tenant_required"})
		return
	}

	var rows []models.Product
	errWork := h.factory.WithTenantDB(c.Request.Context(), info, func(conn *gorm.DB) error {
		return conn.Order("id ASC").Find(&rows).Error
	})
	if errWork != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list products failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"sku":         row.SKU,
			"name":        row.Name,
			"price_cents": row.PriceCents,
			"currency":    row.Currency,
		})
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}
