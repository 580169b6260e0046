// Package authz aggregates module permissions across a user's roles. The most
// permissive role wins: grants are combined with a boolean OR per capability,
// never through inheritance.
package authz

import "github.com/storekit-cloud/storekit/internal/models"

// ModuleKey identifies a functional area permissions attach to. The set is
// closed so that capability checks are exhaustive at compile time.
type ModuleKey string

// Known module keys.
const (
	ModuleCatalog   ModuleKey = "catalog"
	ModuleOrders    ModuleKey = "orders"
	ModuleCustomers ModuleKey = "customers"
	ModuleReports   ModuleKey = "reports"
	ModuleSettings  ModuleKey = "settings"
)

// KnownModules lists every module key in display order.
var KnownModules = []ModuleKey{
	ModuleCatalog,
	ModuleOrders,
	ModuleCustomers,
	ModuleReports,
	ModuleSettings,
}

// moduleNames maps module keys to display names for seeding and responses.
var moduleNames = map[ModuleKey]string{
	ModuleCatalog:   "Catalog",
	ModuleOrders:    "Orders",
	ModuleCustomers: "Customers",
	ModuleReports:   "Reports",
	ModuleSettings:  "Settings",
}

// ModuleName returns the display name for a known module key.
func ModuleName(key ModuleKey) string {
	return moduleNames[key]
}

// IsKnownModule reports whether a stored key maps to a known module.
func IsKnownModule(key string) bool {
	_, ok := moduleNames[ModuleKey(key)]
	return ok
}

// Capability is the effective grant for one module.
type Capability struct {
	CanView   bool `json:"canView"`
	CanEdit   bool `json:"canEdit"`
	CanManage bool `json:"canManage"`
}

// PermissionSet maps module keys to effective capabilities.
type PermissionSet map[ModuleKey]Capability

// Aggregate unions module grants across all of the user's roles. Unknown
// module keys in stored rows are skipped.
func Aggregate(roles []models.Role) PermissionSet {
	set := make(PermissionSet, len(KnownModules))
	for _, role := range roles {
		for _, grant := range role.Permissions {
			if !IsKnownModule(grant.ModuleKey) {
				continue
			}
			key := ModuleKey(grant.ModuleKey)
			cap := set[key]
			cap.CanView = cap.CanView || grant.CanView
			cap.CanEdit = cap.CanEdit || grant.CanEdit
			cap.CanManage = cap.CanManage || grant.CanManage
			set[key] = cap
		}
	}
	return set
}

// Can reports whether the set grants view access on a module.
func (p PermissionSet) Can(key ModuleKey) bool {
	return p[key].CanView
}
