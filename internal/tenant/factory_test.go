package tenant

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/storekit-cloud/storekit/internal/models"
	"gorm.io/gorm"
)

func TestWithTenantDBRunsAndReleases(t *testing.T) {
	dir := t.TempDir()
	info := &Info{
		ID:           "id-acme",
		Slug:         "acme",
		DatabaseName: "tenant_acme",
		DSN:          filepath.Join(dir, "tenant_acme.db"),
	}
	factory := NewFactory()

	errRun := factory.WithTenantDB(context.Background(), info, func(conn *gorm.DB) error {
		if errMigrate := conn.AutoMigrate(&models.Product{}); errMigrate != nil {
			return errMigrate
		}
		return conn.Create(&models.Product{SKU: "sku-1", Name: "Sample"}).Error
	})
	if errRun != nil {
		t.Fatalf("with tenant db: %v", errRun)
	}

	// A second unit of work sees the committed row through a fresh handle.
	errRun = factory.WithTenantDB(context.Background(), info, func(conn *gorm.DB) error {
		var count int64
		if errCount := conn.Model(&models.Product{}).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count != 1 {
			t.Fatalf("expected 1 product, got %d", count)
		}
		return nil
	})
	if errRun != nil {
		t.Fatalf("second unit of work: %v", errRun)
	}
}

func TestWithTenantDBPropagatesError(t *testing.T) {
	dir := t.TempDir()
	info := &Info{ID: "id-a", Slug: "a", DSN: filepath.Join(dir, "a.db")}
	factory := NewFactory()

	wantErr := errors.New("unit of work failed")
	errRun := factory.WithTenantDB(context.Background(), info, func(conn *gorm.DB) error {
		return wantErr
	})
	if !errors.Is(errRun, wantErr) {
		t.Fatalf("expected unit-of-work error, got %v", errRun)
	}
}

func TestWithTenantDBRequiresBinding(t *testing.T) {
	factory := NewFactory()
	errRun := factory.WithTenantDB(context.Background(), nil, func(conn *gorm.DB) error { return nil })
	if errRun == nil {
		t.Fatal("expected error for unbound tenant")
	}
}
