package tenant

import (
	"context"
	"errors"

	"github.com/storekit-cloud/storekit/internal/db"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Factory opens data-store handles scoped to exactly one tenant's database.
// Each logical unit of work acquires its own handle and releases it on every
// exit path; no handle outlives a request, so no state bleeds between tenants
// sharing a worker.
type Factory struct{}

// NewFactory constructs a tenant database factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Open opens a fresh handle against the tenant's database. The caller owns the
// handle and must release it with db.Close. Prefer WithTenantDB, which
// guarantees release.
func (f *Factory) Open(info *Info) (*gorm.DB, error) {
	if f == nil {
		return nil, errors.New("tenant: factory not initialized")
	}
	if info == nil || info.DSN == "" {
		return nil, errors.New("tenant: no tenant bound")
	}
	return db.Open(info.DSN)
}

// WithTenantDB runs fn against a scoped handle for the tenant's database and
// releases the handle on all exit paths.
func (f *Factory) WithTenantDB(ctx context.Context, info *Info, fn func(conn *gorm.DB) error) error {
	if fn == nil {
		return errors.New("tenant: nil unit of work")
	}
	conn, errOpen := f.Open(info)
	if errOpen != nil {
		return errOpen
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warnf("tenant factory: close handle failed (tenant=%s)", info.Slug)
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	return fn(conn.WithContext(ctx))
}
