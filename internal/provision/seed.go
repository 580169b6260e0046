package provision

import (
	"fmt"

	"github.com/storekit-cloud/storekit/internal/authz"
	"github.com/storekit-cloud/storekit/internal/models"
	"gorm.io/gorm"
)

// seedTenantData populates the reference data a tenant needs to be minimally
// functional: app modules, default roles with their grants, and a small demo
// catalog. Seeding is idempotent so a retried pipeline does not duplicate rows.
func seedTenantData(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("provision: nil tenant connection")
	}

	for _, key := range authz.KnownModules {
		module := models.AppModule{Key: string(key), Name: authz.ModuleName(key)}
		if errSeed := conn.Where(models.AppModule{Key: string(key)}).
			FirstOrCreate(&module).Error; errSeed != nil {
			return fmt.Errorf("provision: seed module %s: %w", key, errSeed)
		}
	}

	if errRoles := seedDefaultRoles(conn); errRoles != nil {
		return errRoles
	}
	return seedDemoCatalog(conn)
}

// seedDefaultRoles creates the owner and staff roles. Owner gets every
// capability on every module; staff can view everything and edit the catalog
// and orders.
func seedDefaultRoles(conn *gorm.DB) error {
	owner := models.Role{Name: "owner", System: true}
	if errOwner := conn.Where(models.Role{Name: "owner"}).
		FirstOrCreate(&owner).Error; errOwner != nil {
		return fmt.Errorf("provision: seed owner role: %w", errOwner)
	}
	staff := models.Role{Name: "staff", System: true}
	if errStaff := conn.Where(models.Role{Name: "staff"}).
		FirstOrCreate(&staff).Error; errStaff != nil {
		return fmt.Errorf("provision: seed staff role: %w", errStaff)
	}

	for _, key := range authz.KnownModules {
		ownerGrant := models.RoleModulePermission{
			RoleID:    owner.ID,
			ModuleKey: string(key),
			CanView:   true,
			CanEdit:   true,
			CanManage: true,
		}
		if errGrant := conn.Where(models.RoleModulePermission{RoleID: owner.ID, ModuleKey: string(key)}).
			FirstOrCreate(&ownerGrant).Error; errGrant != nil {
			return fmt.Errorf("provision: seed owner grant %s: %w", key, errGrant)
		}

		staffGrant := models.RoleModulePermission{
			RoleID:    staff.ID,
			ModuleKey: string(key),
			CanView:   true,
			CanEdit:   key == authz.ModuleCatalog || key == authz.ModuleOrders,
		}
		if errGrant := conn.Where(models.RoleModulePermission{RoleID: staff.ID, ModuleKey: string(key)}).
			FirstOrCreate(&staffGrant).Error; errGrant != nil {
			return fmt.Errorf("provision: seed staff grant %s: %w", key, errGrant)
		}
	}
	return nil
}

// seedDemoCatalog inserts a few demo products so a fresh tenant is browsable.
func seedDemoCatalog(conn *gorm.DB) error {
	demo := []models.Product{
		{SKU: "demo-mug", Name: "Demo Mug", PriceCents: 1250, Currency: "USD"},
		{SKU: "demo-tee", Name: "Demo T-Shirt", PriceCents: 2200, Currency: "USD"},
		{SKU: "demo-cap", Name: "Demo Cap", PriceCents: 1800, Currency: "USD"},
	}
	for _, product := range demo {
		row := product
		if errSeed := conn.Where(models.Product{SKU: product.SKU}).
			FirstOrCreate(&row).Error; errSeed != nil {
			return fmt.Errorf("provision: seed product %s: %w", product.SKU, errSeed)
		}
	}
	return nil
}
