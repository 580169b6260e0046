package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	internaldb "github.com/storekit-cloud/storekit/internal/db"
	"github.com/storekit-cloud/storekit/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Provisioner runs the three-step provisioning pipeline for one tenant and
// records every step in the registry's audit trail. Pipeline failures are
// contained: they finalize the step and the tenant as Failed instead of
// propagating, so one tenant's failure cannot crash the worker.
type Provisioner struct {
	db      *gorm.DB
	creator Creator
}

// NewProvisioner constructs a provisioner over the control-plane registry.
func NewProvisioner(db *gorm.DB, creator Creator) *Provisioner {
	if db == nil || creator == nil {
		return nil
	}
	return &Provisioner{db: db, creator: creator}
}

// Provision drives CreateDatabase, ApplyMigrations, and SeedData for the
// tenant, in order. Each step writes an InProgress record before starting and
// finalizes it before the next step begins; if the process dies mid-pipeline
// the last unfinished record marks the point of failure. The returned error is
// non-nil only for registry bookkeeping failures, never for step failures.
func (p *Provisioner) Provision(ctx context.Context, tenantID string) error {
	if p == nil || p.db == nil {
		return errors.New("provision: provisioner not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var row models.Tenant
	errFind := p.db.WithContext(ctx).Where("id = ?", tenantID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("provision: tenant not found: %s", tenantID)
	}
	if errFind != nil {
		return errFind
	}

	attempt, errAttempt := p.nextAttempt(ctx, tenantID)
	if errAttempt != nil {
		return errAttempt
	}

	if errStep := p.runStep(ctx, &row, attempt, models.StepCreateDatabase, p.createDatabase); errStep != nil {
		return p.failTenant(ctx, &row, errStep)
	}
	if errStep := p.runStep(ctx, &row, attempt, models.StepApplyMigrations, p.applyMigrations); errStep != nil {
		return p.failTenant(ctx, &row, errStep)
	}
	if errStep := p.runStep(ctx, &row, attempt, models.StepSeedData, p.seedData); errStep != nil {
		return p.failTenant(ctx, &row, errStep)
	}

	errActivate := p.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"status":     models.TenantStatusActive,
			"last_error": "",
		}).Error
	if errActivate != nil {
		return fmt.Errorf("provision: activate tenant: %w", errActivate)
	}
	log.Infof("provision: tenant %s active (attempt=%d)", row.Slug, attempt)
	return nil
}

// stepFunc executes one pipeline step and returns an operator-facing message.
type stepFunc func(ctx context.Context, row *models.Tenant) (string, error)

// runStep records InProgress, executes the step, and finalizes the record to
// Success or Failed. The step's own error is returned; record-write errors are
// logged but do not mask the step outcome.
func (p *Provisioner) runStep(ctx context.Context, row *models.Tenant, attempt int, name models.ProvisioningStepName, fn stepFunc) error {
	record := models.TenantProvisioningStep{
		TenantID:  row.ID,
		Attempt:   attempt,
		Name:      name,
		Status:    models.StepStatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	if errCreate := p.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return fmt.Errorf("provision: record step %s: %w", name, errCreate)
	}

	message, errStep := fn(ctx, row)

	now := time.Now().UTC()
	updates := map[string]any{
		"completed_at": &now,
		"message":      message,
	}
	if errStep != nil {
		updates["status"] = models.StepStatusFailed
		updates["error"] = errStep.Error()
	} else {
		updates["status"] = models.StepStatusSuccess
	}
	if errUpdate := p.db.WithContext(ctx).
		Model(&models.TenantProvisioningStep{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).Errorf("provision: finalize step %s failed (tenant=%s)", name, row.Slug)
	}

	if errStep != nil {
		return fmt.Errorf("%s: %w", name, errStep)
	}
	return nil
}

// createDatabase validates the database name and ensures the physical
// database exists. An already existing database counts as success so retries
// after partial failure are safe.
func (p *Provisioner) createDatabase(ctx context.Context, row *models.Tenant) (string, error) {
	created, errEnsure := p.creator.EnsureDatabase(ctx, row.DatabaseName)
	if errEnsure != nil {
		return "", errEnsure
	}
	if created {
		return fmt.Sprintf("database %s created", row.DatabaseName), nil
	}
	return fmt.Sprintf("database %s already exists", row.DatabaseName), nil
}

// applyMigrations opens the tenant database, verifies connectivity, and
// applies pending schema migrations.
func (p *Provisioner) applyMigrations(ctx context.Context, row *models.Tenant) (string, error) {
	conn, errOpen := internaldb.Open(p.creator.DSNFor(row.DatabaseName))
	if errOpen != nil {
		return "", errOpen
	}
	defer func() {
		if errClose := internaldb.Close(conn); errClose != nil {
			log.WithError(errClose).Warnf("provision: close tenant handle failed (tenant=%s)", row.Slug)
		}
	}()

	pending, errPending := internaldb.HasPendingTenantMigrations(conn)
	if errPending != nil {
		return "", errPending
	}
	if !pending {
		return "schema up to date", nil
	}
	if errMigrate := internaldb.MigrateTenant(conn.WithContext(ctx)); errMigrate != nil {
		return "", errMigrate
	}
	return "migrations applied", nil
}

// seedData populates default roles, modules, and the demo catalog.
func (p *Provisioner) seedData(ctx context.Context, row *models.Tenant) (string, error) {
	conn, errOpen := internaldb.Open(p.creator.DSNFor(row.DatabaseName))
	if errOpen != nil {
		return "", errOpen
	}
	defer func() {
		if errClose := internaldb.Close(conn); errClose != nil {
			log.WithError(errClose).Warnf("provision: close tenant handle failed (tenant=%s)", row.Slug)
		}
	}()

	if errSeed := seedTenantData(conn.WithContext(ctx)); errSeed != nil {
		return "", errSeed
	}
	return "reference data seeded", nil
}

// failTenant finalizes a pipeline failure: the tenant becomes Failed with its
// last-error field populated, and the step error is swallowed. Only the
// registry write itself can surface an error.
func (p *Provisioner) failTenant(ctx context.Context, row *models.Tenant, stepErr error) error {
	log.WithError(stepErr).Warnf("provision: pipeline failed (tenant=%s)", row.Slug)
	errUpdate := p.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"status":     models.TenantStatusFailed,
			"last_error": stepErr.Error(),
		}).Error
	if errUpdate != nil {
		return fmt.Errorf("provision: mark tenant failed: %w", errUpdate)
	}
	return nil
}

// nextAttempt numbers the new step sequence after any previous attempts.
func (p *Provisioner) nextAttempt(ctx context.Context, tenantID string) (int, error) {
	var maxAttempt int
	errScan := p.db.WithContext(ctx).
		Model(&models.TenantProvisioningStep{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(MAX(attempt), 0)").
		Scan(&maxAttempt).Error
	if errScan != nil {
		return 0, fmt.Errorf("provision: next attempt: %w", errScan)
	}
	return maxAttempt + 1, nil
}
