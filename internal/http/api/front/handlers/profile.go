package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/authz"
	relayhttp "github.com/storekit-cloud/storekit/internal/http"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// ProfileHandler serves the authenticated user's account data.
type ProfileHandler struct {
	factory *tenant.Factory
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(factory *tenant.Factory) *ProfileHandler {
	return &ProfileHandler{factory: factory}
}

// loadUser fetches the authenticated user with roles from the bound tenant's
// database, writing the error response itself on failure.
func (h *ProfileHandler) loadUser(c *gin.Context) (*models.User, bool) {
	info := relayhttp.BoundTenant(c)
	claims := relayhttp.UserClaims(c)
	if info == nil || claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}

	var user models.User
	errWork := h.factory.WithTenantDB(c.Request.Context(), info, func(conn *gorm.DB) error {
		return conn.Preload("Roles.Permissions").First(&user, claims.UserID).Error
	})
	if errors.Is(errWork, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	if errWork != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	if user.Disabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return nil, false
	}
	return &user, true
}

// Get returns the authenticated user's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.Name)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"roles":      roles,
		"created_at": user.CreatedAt,
	})
}

// Permissions returns the union of the user's role grants per module.
func (h *ProfileHandler) Permissions(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	set := authz.Aggregate(user.Roles)
	c.JSON(http.StatusOK, gin.H{"permissions": set})
}
