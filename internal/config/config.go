// Package config loads server configuration from a YAML file with .env and
// environment-variable overlays.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable overrides for secrets that should stay out of the
// config file.
const (
	envVaultKey  = "STOREKIT_VAULT_KEY"
	envJWTSecret = "STOREKIT_JWT_SECRET"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds control-plane and tenant data-store settings.
type DatabaseConfig struct {
	// ControlDSN reaches the control-plane registry database.
	ControlDSN string `yaml:"control_dsn"`
	// AdminDSN reaches a maintenance database with CREATEDB rights. For
	// SQLite deployments it may equal ControlDSN.
	AdminDSN string `yaml:"admin_dsn"`
	// TenantDSNTemplate builds a tenant connection string; %s receives the
	// database name. Unused for SQLite deployments.
	TenantDSNTemplate string `yaml:"tenant_dsn_template"`
	// TenantDataDir holds SQLite tenant database files.
	TenantDataDir string `yaml:"tenant_data_dir"`
}

// VaultConfig holds the connection-string protection settings.
type VaultConfig struct {
	MasterKey string `yaml:"master_key"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret           string `yaml:"secret"`
	UserExpiryHours  int    `yaml:"user_expiry_hours"`
	AdminExpiryHours int    `yaml:"admin_expiry_hours"`
}

// UserExpiry returns the user token lifetime.
func (c JWTConfig) UserExpiry() time.Duration {
	hours := c.UserExpiryHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// AdminExpiry returns the admin token lifetime.
func (c JWTConfig) AdminExpiry() time.Duration {
	hours := c.AdminExpiryHours
	if hours <= 0 {
		hours = 8
	}
	return time.Duration(hours) * time.Hour
}

// RedisConfig holds optional Redis settings for cross-instance invalidation.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging output settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Vault    VaultConfig    `yaml:"vault"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads the configuration file, applies .env and environment overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	// .env is optional; it only seeds process env for the overrides below.
	_ = godotenv.Load()

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	if key := strings.TrimSpace(os.Getenv(envVaultKey)); key != "" {
		cfg.Vault.MasterKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(envJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.AdminDSN == "" {
		cfg.Database.AdminDSN = cfg.Database.ControlDSN
	}

	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.ControlDSN) == "" {
		return fmt.Errorf("config: database.control_dsn is required")
	}
	if strings.TrimSpace(c.Vault.MasterKey) == "" {
		return fmt.Errorf("config: vault.master_key is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	return nil
}
