package models

import (
	"regexp"
	"time"
)

// TenantStatus enumerates tenant lifecycle states.
type TenantStatus string

// Tenant lifecycle states. Transitions are monotonic except that Failed may
// re-enter Seeding through a retry enqueue.
const (
	// TenantStatusPending marks a registered tenant before provisioning.
	TenantStatusPending TenantStatus = "pending"
	// TenantStatusSeeding marks a tenant currently being provisioned.
	TenantStatusSeeding TenantStatus = "seeding"
	// TenantStatusActive marks a tenant eligible for traffic.
	TenantStatusActive TenantStatus = "active"
	// TenantStatusFailed marks a tenant whose provisioning failed.
	TenantStatusFailed TenantStatus = "failed"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9-]{3,50}$`)
	dbNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,63}$`)
)

// ValidSlug reports whether a slug matches the routing-key charset.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// ValidDatabaseName reports whether a database name matches the allow-list
// pattern used by the database provisioner.
func ValidDatabaseName(name string) bool {
	return dbNamePattern.MatchString(name)
}

// Tenant is the control-plane registry row for one isolated customer account.
type Tenant struct {
	ID string `gorm:"type:text;primaryKey"` // Opaque tenant id (UUID).

	Slug string `gorm:"type:text;not null;uniqueIndex"` // Immutable routing key, lower-case.
	Name string `gorm:"type:text;not null"`             // Display name.

	PlanID *uint64 `gorm:"index"` // Assigned plan, nil until chosen.

	DatabaseName string `gorm:"type:text;not null;uniqueIndex"` // Derived physical database name.

	Status       TenantStatus `gorm:"type:text;not null;default:'pending';index"` // Lifecycle state.
	EncryptedDSN string       `gorm:"type:text;not null"`                         // Vault-protected connection string.
	LastError    string       `gorm:"type:text"`                                  // Last provisioning error, empty when healthy.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ProvisioningStepName enumerates the recorded pipeline steps.
type ProvisioningStepName string

// Pipeline step names, in execution order.
const (
	StepCreateDatabase  ProvisioningStepName = "CreateDatabase"
	StepApplyMigrations ProvisioningStepName = "ApplyMigrations"
	StepSeedData        ProvisioningStepName = "SeedData"
)

// ProvisioningStepStatus enumerates the states of one step record.
type ProvisioningStepStatus string

// Step record states. Records are finalized to Success or Failed and never
// mutated afterward.
const (
	StepStatusPending    ProvisioningStepStatus = "pending"
	StepStatusInProgress ProvisioningStepStatus = "in_progress"
	StepStatusSuccess    ProvisioningStepStatus = "success"
	StepStatusFailed     ProvisioningStepStatus = "failed"
)

// TenantProvisioningStep is an append-only audit record of one pipeline step.
// Re-provisioning appends a new attempt sequence rather than rewriting history.
type TenantProvisioningStep struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID string               `gorm:"type:text;not null;index;index:idx_tenant_step,priority:1"` // Owning tenant.
	Attempt  int                  `gorm:"not null;default:1"`                                        // Provisioning attempt number.
	Name     ProvisioningStepName `gorm:"type:text;not null;index:idx_tenant_step,priority:2"`       // Step name.

	Status ProvisioningStepStatus `gorm:"type:text;not null"` // Step outcome.

	StartedAt   time.Time  `gorm:"not null"` // When the step began.
	CompletedAt *time.Time ``               // When the step finalized, nil while in progress.

	Message string `gorm:"type:text"` // Operator-facing log line.
	Error   string `gorm:"type:text"` // Error text when Status is failed.
}
