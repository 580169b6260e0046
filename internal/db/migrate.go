package db

import (
	"fmt"

	"github.com/storekit-cloud/storekit/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the control-plane registry schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.Tenant{},
		&models.TenantProvisioningStep{},
		&models.Plan{},
		&models.TenantFeatureOverride{},
		&models.Admin{},
	)
}

// MigrateTenant applies the per-tenant application schema.
func MigrateTenant(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.AppModule{},
		&models.RoleModulePermission{},
		&models.Product{},
	)
}

// HasPendingTenantMigrations reports whether the tenant schema is incomplete.
func HasPendingTenantMigrations(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("db: nil connection")
	}
	targets := []any{
		&models.User{},
		&models.Role{},
		&models.AppModule{},
		&models.RoleModulePermission{},
		&models.Product{},
	}
	for _, target := range targets {
		if !conn.Migrator().HasTable(target) {
			return true, nil
		}
	}
	return false, nil
}
