package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/flags"
	"github.com/storekit-cloud/storekit/internal/models"
)

// PlanHandler manages subscription plans and their feature-flag defaults.
type PlanHandler struct {
	db *gorm.DB
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(db *gorm.DB) *PlanHandler {
	return &PlanHandler{db: db}
}

// planRequest defines the plan create/update body.
type planRequest struct {
	Code            string                     `json:"code"`
	Name            string                     `json:"name"`
	FeatureDefaults map[string]json.RawMessage `json:"feature_defaults"`
}

// validateFeatureDefaults rejects unknown flag keys so typos never silently
// become dead configuration.
func validateFeatureDefaults(defaults map[string]json.RawMessage) (datatypes.JSON, string, bool) {
	if defaults == nil {
		return datatypes.JSON([]byte("{}")), "", true
	}
	for key := range defaults {
		if !flags.KnownKey(key) {
			return nil, key, false
		}
	}
	raw, errMarshal := json.Marshal(defaults)
	if errMarshal != nil {
		return nil, "", false
	}
	return datatypes.JSON(raw), "", true
}

// Create registers a new plan.
func (h *PlanHandler) Create(c *gin.Context) {
	var body planRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.ToUpper(strings.TrimSpace(body.Code))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	defaults, badKey, ok := validateFeatureDefaults(body.FeatureDefaults)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown flag key", "key": badKey})
		return
	}

	plan := models.Plan{
		Code:            code,
		Name:            strings.TrimSpace(body.Name),
		FeatureDefaults: defaults,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&plan).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "plan code already exists"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": plan.ID, "code": plan.Code})
}

// List returns all plans.
func (h *PlanHandler) List(c *gin.Context) {
	var rows []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":               row.ID,
			"code":             row.Code,
			"name":             row.Name,
			"feature_defaults": json.RawMessage(row.FeatureDefaults),
			"created_at":       row.CreatedAt,
			"updated_at":       row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Update modifies a plan's name or flag defaults. Changing defaults does not
// invalidate tenant flag caches immediately; entries age out within the
// absolute TTL.
func (h *PlanHandler) Update(c *gin.Context) {
	id, ok := parsePlanID(c)
	if !ok {
		return
	}
	var body planRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if name := strings.TrimSpace(body.Name); name != "" {
		updates["name"] = name
	}
	if body.FeatureDefaults != nil {
		defaults, badKey, okDefaults := validateFeatureDefaults(body.FeatureDefaults)
		if !okDefaults {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown flag key", "key": badKey})
			return
		}
		updates["feature_defaults"] = defaults
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Plan{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
