package models

import "time"

// User is an end-user account stored inside one tenant's database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	Name     string `gorm:"type:text"`                      // Display name.

	Disabled bool `gorm:"not null;default:false"` // Whether sign-in is blocked.

	Roles []Role `gorm:"many2many:user_roles"` // Assigned roles.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Role groups module permissions inside one tenant's database.
type Role struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name   string `gorm:"type:text;not null;uniqueIndex"` // Role name, e.g. owner.
	System bool   `gorm:"not null;default:false"`         // Seeded roles cannot be deleted.

	Permissions []RoleModulePermission `gorm:"foreignKey:RoleID"` // Per-module capability grants.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AppModule is a functional area of the product that permissions attach to.
type AppModule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key  string `gorm:"type:text;not null;uniqueIndex"` // Stable module key, e.g. catalog.
	Name string `gorm:"type:text;not null"`             // Display name.
}

// RoleModulePermission grants capabilities on one module to one role.
type RoleModulePermission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RoleID    uint64 `gorm:"not null;uniqueIndex:idx_role_module,priority:1"`           // Owning role.
	ModuleKey string `gorm:"type:text;not null;uniqueIndex:idx_role_module,priority:2"` // Target module key.

	CanView   bool `gorm:"not null;default:false"` // Read access.
	CanEdit   bool `gorm:"not null;default:false"` // Write access.
	CanManage bool `gorm:"not null;default:false"` // Administrative access.
}

// Product is a demo catalog row seeded into new tenant databases.
type Product struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SKU        string `gorm:"type:text;not null;uniqueIndex"` // Stock keeping unit.
	Name       string `gorm:"type:text;not null"`             // Display name.
	PriceCents int64  `gorm:"not null;default:0"`             // Unit price in cents.
	Currency   string `gorm:"type:text;not null;default:'USD'"` // ISO currency code.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
