package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/vault"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T) (*gorm.DB, *vault.Vault) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Tenant{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	v, errVault := vault.New([]byte("0123456789abcdef0123456789abcdef"), "tenant-connection-string")
	if errVault != nil {
		t.Fatalf("new vault: %v", errVault)
	}
	return conn, v
}

func seedTenant(t *testing.T, conn *gorm.DB, v *vault.Vault, id, slug string, status models.TenantStatus) {
	t.Helper()
	encrypted, errProtect := v.Protect("file:/tmp/" + slug + ".db")
	if errProtect != nil {
		t.Fatalf("protect: %v", errProtect)
	}
	row := models.Tenant{
		ID:           id,
		Slug:         slug,
		Name:         slug,
		DatabaseName: "tenant_" + id,
		Status:       status,
		EncryptedDSN: encrypted,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create tenant: %v", errCreate)
	}
}

func TestResolveActiveTenant(t *testing.T) {
	conn, v := newTestRegistry(t)
	seedTenant(t, conn, v, "id-acme", "acme", models.TenantStatusActive)
	resolver := NewResolver(conn, v)

	info, errResolve := resolver.Resolve(context.Background(), "acme")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if info.ID != "id-acme" || info.Slug != "acme" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.DSN != "file:/tmp/acme.db" {
		t.Fatalf("expected decrypted dsn, got %q", info.DSN)
	}
}

func TestResolveNormalizesCandidate(t *testing.T) {
	conn, v := newTestRegistry(t)
	seedTenant(t, conn, v, "id-acme", "acme", models.TenantStatusActive)
	resolver := NewResolver(conn, v)

	info, errResolve := resolver.Resolve(context.Background(), "  ACME  ")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if info.Slug != "acme" {
		t.Fatalf("expected acme, got %q", info.Slug)
	}
}

func TestResolveCandidatePrecedence(t *testing.T) {
	conn, v := newTestRegistry(t)
	seedTenant(t, conn, v, "id-a", "tenant-a", models.TenantStatusActive)
	seedTenant(t, conn, v, "id-b", "tenant-b", models.TenantStatusActive)
	resolver := NewResolver(conn, v)

	// Empty header candidate falls through to the query candidate.
	info, errResolve := resolver.Resolve(context.Background(), "", "tenant-b", "tenant-a")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if info.ID != "id-b" {
		t.Fatalf("expected first non-empty candidate to win, got %s", info.ID)
	}
}

func TestResolveNoCandidate(t *testing.T) {
	conn, v := newTestRegistry(t)
	resolver := NewResolver(conn, v)

	if _, errResolve := resolver.Resolve(context.Background(), "", "  "); !errors.Is(errResolve, ErrNoRoutingKey) {
		t.Fatalf("expected ErrNoRoutingKey, got %v", errResolve)
	}
}

func TestResolveUnknownSlug(t *testing.T) {
	conn, v := newTestRegistry(t)
	resolver := NewResolver(conn, v)

	if _, errResolve := resolver.Resolve(context.Background(), "ghost"); !errors.Is(errResolve, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errResolve)
	}
}

func TestResolveNotReadyCarriesStatus(t *testing.T) {
	conn, v := newTestRegistry(t)
	resolver := NewResolver(conn, v)

	for _, status := range []models.TenantStatus{
		models.TenantStatusPending,
		models.TenantStatusSeeding,
		models.TenantStatusFailed,
	} {
		slug := "locked-" + string(status)
		seedTenant(t, conn, v, "id-"+slug, slug, status)

		info, errResolve := resolver.Resolve(context.Background(), slug)
		if info != nil {
			t.Fatalf("status %s: expected no info", status)
		}
		notReady, ok := IsNotReady(errResolve)
		if !ok {
			t.Fatalf("status %s: expected NotReadyError, got %v", status, errResolve)
		}
		if notReady.Status != status {
			t.Fatalf("expected status %s, got %s", status, notReady.Status)
		}
	}
}

func TestResolveRejectsCorruptCiphertext(t *testing.T) {
	conn, v := newTestRegistry(t)
	row := models.Tenant{
		ID:           "id-bad",
		Slug:         "bad",
		Name:         "bad",
		DatabaseName: "tenant_bad",
		Status:       models.TenantStatusActive,
		EncryptedDSN: "v1:garbage",
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create tenant: %v", errCreate)
	}
	resolver := NewResolver(conn, v)

	if _, errResolve := resolver.Resolve(context.Background(), "bad"); !errors.Is(errResolve, vault.ErrCiphertextInvalid) {
		t.Fatalf("expected vault error, got %v", errResolve)
	}
}

func TestSlugFromHost(t *testing.T) {
	cases := map[string]string{
		"acme.storekit.cloud":      "acme",
		"ACME.storekit.cloud:8443": "acme",
		"www.storekit.cloud":       "",
		"storekit.cloud":           "",
		"localhost:8080":           "",
		"":                         "",
	}
	for host, want := range cases {
		if got := SlugFromHost(host); got != want {
			t.Fatalf("host %q: got %q want %q", host, got, want)
		}
	}
}
