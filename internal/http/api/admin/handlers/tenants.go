package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/flags"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/provision"
	"github.com/storekit-cloud/storekit/internal/vault"
)

// TenantHandler manages tenant registration and provisioning control.
type TenantHandler struct {
	db          *gorm.DB
	vault       *vault.Vault
	creator     provision.Creator
	worker      *provision.Worker
	flagService *flags.Service
}

// NewTenantHandler constructs a TenantHandler.
func NewTenantHandler(
	db *gorm.DB,
	v *vault.Vault,
	creator provision.Creator,
	worker *provision.Worker,
	flagService *flags.Service,
) *TenantHandler {
	return &TenantHandler{db: db, vault: v, creator: creator, worker: worker, flagService: flagService}
}

// createTenantRequest defines the tenant registration body.
type createTenantRequest struct {
	Slug   string  `json:"slug"`
	Name   string  `json:"name"`
	PlanID *uint64 `json:"plan_id"`
}

// databaseNameForSlug derives the physical database name from a slug. Hyphens
// are folded to underscores to satisfy the identifier allow-list.
func databaseNameForSlug(slug string) string {
	return "tenant_" + strings.ReplaceAll(slug, "-", "_")
}

// Create registers a tenant in Pending state and enqueues provisioning. The
// registry row survives a full queue; the retry endpoint re-enqueues it.
func (h *TenantHandler) Create(c *gin.Context) {
	var body createTenantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))
	if !models.ValidSlug(slug) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slug", "code": "invalid_slug"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = slug
	}

	databaseName := databaseNameForSlug(slug)
	if !models.ValidDatabaseName(databaseName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid database name", "code": "invalid_database_name"})
		return
	}

	if body.PlanID != nil {
		var plan models.Plan
		if errFind := h.db.WithContext(c.Request.Context()).First(&plan, *body.PlanID).Error; errFind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
			return
		}
	}

	encrypted, errProtect := h.vault.Protect(h.creator.DSNFor(databaseName))
	if errProtect != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "protect connection string failed"})
		return
	}

	row := models.Tenant{
		ID:           uuid.NewString(),
		Slug:         slug,
		Name:         name,
		PlanID:       body.PlanID,
		DatabaseName: databaseName,
		Status:       models.TenantStatusPending,
		EncryptedDSN: encrypted,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "slug already registered", "code": "slug_taken"})
		return
	}

	queued := true
	if errEnqueue := h.worker.Enqueue(row.ID); errEnqueue != nil {
		queued = false
		log.WithError(errEnqueue).Warnf("tenant create: enqueue rejected (tenant=%s)", row.ID)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     row.ID,
		"slug":   row.Slug,
		"status": row.Status,
		"queued": queued,
	})
}

// List returns registry rows with optional slug and status filters.
func (h *TenantHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Tenant{})
	if slugQ := strings.TrimSpace(c.Query("slug")); slugQ != "" {
		q = q.Where("slug LIKE ?", "%"+strings.ToLower(slugQ)+"%")
	}
	if statusQ := strings.TrimSpace(c.Query("status")); statusQ != "" {
		q = q.Where("status = ?", statusQ)
	}

	var rows []models.Tenant
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tenants failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, tenantSummary(row))
	}
	c.JSON(http.StatusOK, gin.H{"tenants": out})
}

// Get returns one tenant with its ordered provisioning step history.
func (h *TenantHandler) Get(c *gin.Context) {
	row, ok := h.loadTenant(c)
	if !ok {
		return
	}

	var steps []models.TenantProvisioningStep
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", row.ID).
		Order("attempt ASC, started_at ASC, id ASC").
		Find(&steps).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load steps failed"})
		return
	}

	stepOut := make([]gin.H, 0, len(steps))
	for _, step := range steps {
		stepOut = append(stepOut, gin.H{
			"attempt":      step.Attempt,
			"name":         step.Name,
			"status":       step.Status,
			"started_at":   step.StartedAt,
			"completed_at": step.CompletedAt,
			"message":      step.Message,
			"error":        step.Error,
		})
	}

	body := tenantSummary(*row)
	body["steps"] = stepOut
	c.JSON(http.StatusOK, body)
}

// Retry re-enqueues provisioning for a failed tenant.
func (h *TenantHandler) Retry(c *gin.Context) {
	row, ok := h.loadTenant(c)
	if !ok {
		return
	}
	if row.Status != models.TenantStatusFailed {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "tenant is not in a retryable state",
			"code":   "not_retryable",
			"status": row.Status,
		})
		return
	}
	if errEnqueue := h.worker.Enqueue(row.ID); errEnqueue != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provisioning queue full", "code": "queue_full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": row.ID, "queued": true})
}

// assignPlanRequest defines the plan assignment body.
type assignPlanRequest struct {
	PlanID uint64 `json:"plan_id"`
}

// AssignPlan changes a tenant's plan and invalidates its cached flags.
func (h *TenantHandler) AssignPlan(c *gin.Context) {
	row, ok := h.loadTenant(c)
	if !ok {
		return
	}
	var body assignPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	var plan models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).First(&plan, body.PlanID).Error; errFind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.Tenant{}).
		Where("id = ?", row.ID).
		Update("plan_id", plan.ID).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assign plan failed"})
		return
	}
	h.flagService.Invalidate(c.Request.Context(), row.ID)
	c.JSON(http.StatusOK, gin.H{"id": row.ID, "plan_id": plan.ID})
}

// setOverrideRequest defines the flag override body.
type setOverrideRequest struct {
	Value json.RawMessage `json:"value"`
}

// SetFeatureOverride upserts one per-tenant flag override and invalidates the
// cached flags.
func (h *TenantHandler) SetFeatureOverride(c *gin.Context) {
	row, ok := h.loadTenant(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if !flags.KnownKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown flag key", "code": "unknown_flag"})
		return
	}
	var body setOverrideRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	override := models.TenantFeatureOverride{
		TenantID: row.ID,
		Key:      key,
		Value:    datatypes.JSON(body.Value),
	}
	errUpsert := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ? AND key = ?", row.ID, key).
		Assign("value", datatypes.JSON(body.Value)).
		FirstOrCreate(&override).Error
	if errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save override failed"})
		return
	}
	h.flagService.Invalidate(c.Request.Context(), row.ID)
	c.JSON(http.StatusOK, gin.H{"tenant_id": row.ID, "key": key})
}

// DeleteFeatureOverride removes one override, restoring the plan default.
func (h *TenantHandler) DeleteFeatureOverride(c *gin.Context) {
	row, ok := h.loadTenant(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	res := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ? AND key = ?", row.ID, key).
		Delete(&models.TenantFeatureOverride{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete override failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.flagService.Invalidate(c.Request.Context(), row.ID)
	c.Status(http.StatusNoContent)
}

// EffectiveFlags returns the resolved flags the tenant currently sees.
func (h *TenantHandler) EffectiveFlags(c *gin.Context) {
	row, ok := h.loadTenant(c)
	if !ok {
		return
	}
	resolved, errGet := h.flagService.Get(c.Request.Context(), row.ID, row.PlanID)
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve flags failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": row.ID, "flags": resolved})
}

// loadTenant fetches the tenant named by the :id path parameter, writing the
// error response itself on failure.
func (h *TenantHandler) loadTenant(c *gin.Context) (*models.Tenant, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var row models.Tenant
	errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &row, true
}

func tenantSummary(row models.Tenant) gin.H {
	return gin.H{
		"id":            row.ID,
		"slug":          row.Slug,
		"name":          row.Name,
		"plan_id":       row.PlanID,
		"database_name": row.DatabaseName,
		"status":        row.Status,
		"last_error":    row.LastError,
		"created_at":    row.CreatedAt,
		"updated_at":    row.UpdatedAt,
	}
}

// parsePlanID parses a numeric id path parameter.
func parsePlanID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
