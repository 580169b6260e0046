package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan is a control-plane subscription plan carrying feature-flag defaults.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code string `gorm:"type:text;not null;uniqueIndex"` // Stable plan code, e.g. BASIC.
	Name string `gorm:"type:text;not null"`             // Display name.

	FeatureDefaults datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Flag key -> default value.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TenantFeatureOverride pins one feature-flag key for one tenant, superseding
// the plan default for that key.
type TenantFeatureOverride struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID string `gorm:"type:text;not null;uniqueIndex:idx_tenant_flag,priority:1;index"` // Owning tenant.
	Key      string `gorm:"type:text;not null;uniqueIndex:idx_tenant_flag,priority:2"`       // Flag key.

	Value datatypes.JSON `gorm:"type:jsonb;not null"` // Override value.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
