package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/vault"
	"gorm.io/gorm"
)

// Resolver maps an inbound routing key to a registry row and materializes a
// request-scoped Info with the decrypted connection string.
type Resolver struct {
	db    *gorm.DB
	vault *vault.Vault
}

// NewResolver constructs a resolver over the control-plane registry.
func NewResolver(db *gorm.DB, v *vault.Vault) *Resolver {
	if db == nil || v == nil {
		return nil
	}
	return &Resolver{db: db, vault: v}
}

// Resolve picks the first non-empty routing-key candidate, normalizes it, and
// looks up the tenant by slug. Candidates are ordered by precedence: explicit
// header, query parameter, host subdomain. Resolution is read-only; it never
// mutates the registry.
func (r *Resolver) Resolve(ctx context.Context, candidates ...string) (*Info, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tenant: resolver not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	slug := firstCandidate(candidates)
	if slug == "" {
		return nil, ErrNoRoutingKey
	}

	var row models.Tenant
	errFind := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, errFind
	}

	if row.Status != models.TenantStatusActive {
		return nil, &NotReadyError{Slug: row.Slug, Status: row.Status}
	}

	dsn, errUnprotect := r.vault.Unprotect(row.EncryptedDSN)
	if errUnprotect != nil {
		return nil, errUnprotect
	}

	return &Info{
		ID:           row.ID,
		Slug:         row.Slug,
		DatabaseName: row.DatabaseName,
		PlanID:       row.PlanID,
		DSN:          dsn,
	}, nil
}

// firstCandidate returns the first non-empty candidate, trimmed and lower-cased.
func firstCandidate(candidates []string) string {
	for _, candidate := range candidates {
		trimmed := strings.ToLower(strings.TrimSpace(candidate))
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// SlugFromHost extracts the leftmost label of a request host for use as the
// lowest-precedence routing-key candidate. Bare hosts and IPs yield "".
func SlugFromHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	label := strings.ToLower(strings.TrimSpace(parts[0]))
	if label == "www" {
		return ""
	}
	return label
}
