package provision

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	internaldb "github.com/storekit-cloud/storekit/internal/db"
	"github.com/storekit-cloud/storekit/internal/models"
	"gorm.io/gorm"
)

// newFileRegistry uses a file-backed registry so the worker goroutine and the
// test share one database.
func newFileRegistry(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := internaldb.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func waitForStatus(t *testing.T, conn *gorm.DB, tenantID string, want models.TenantStatus) models.Tenant {
	t.Helper()
	var row models.Tenant
	for attempt := 0; attempt < 200; attempt++ {
		if errFind := conn.First(&row, "id = ?", tenantID).Error; errFind != nil {
			t.Fatalf("load tenant: %v", errFind)
		}
		if row.Status == want {
			return row
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("tenant %s never reached %s (last=%s last_error=%q)", tenantID, want, row.Status, row.LastError)
	return row
}

func TestWorkerDrivesTenantToActive(t *testing.T) {
	conn := newFileRegistry(t)
	registerTenant(t, conn, "t1", "acme")
	worker := NewWorker(conn, NewProvisioner(conn, newSQLiteCreator(t)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	if errEnqueue := worker.Enqueue("t1"); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}

	row := waitForStatus(t, conn, "t1", models.TenantStatusActive)
	if row.LastError != "" {
		t.Fatalf("expected cleared last error, got %q", row.LastError)
	}

	steps := loadSteps(t, conn, "t1")
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
}

func TestWorkerSurvivesFailingTenant(t *testing.T) {
	conn := newFileRegistry(t)
	registerTenant(t, conn, "tbad", "bad")
	registerTenant(t, conn, "tgood", "good")

	// The bad tenant fails at ApplyMigrations; the good tenant behind it in
	// the queue must still provision on the same worker.
	creator := &selectiveCreator{inner: newSQLiteCreator(t), badName: "tenant_tbad"}
	worker := NewWorker(conn, NewProvisioner(conn, creator))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	if errEnqueue := worker.Enqueue("tbad"); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errEnqueue := worker.Enqueue("tgood"); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}

	waitForStatus(t, conn, "tbad", models.TenantStatusFailed)
	waitForStatus(t, conn, "tgood", models.TenantStatusActive)
}

// selectiveCreator breaks migrations for a single database name.
type selectiveCreator struct {
	inner   Creator
	badName string
}

func (c *selectiveCreator) EnsureDatabase(ctx context.Context, name string) (bool, error) {
	return c.inner.EnsureDatabase(ctx, name)
}

func (c *selectiveCreator) DSNFor(name string) string {
	if name == c.badName {
		return "mysql://unsupported"
	}
	return c.inner.DSNFor(name)
}

func TestWorkerRetryReentersSeedingAndSucceeds(t *testing.T) {
	conn := newFileRegistry(t)
	registerTenant(t, conn, "t1", "acme")
	good := newSQLiteCreator(t)

	failing := NewProvisioner(conn, &brokenMigrationCreator{inner: good})
	if errProvision := failing.Provision(context.Background(), "t1"); errProvision != nil {
		t.Fatalf("provision: %v", errProvision)
	}
	waitForStatus(t, conn, "t1", models.TenantStatusFailed)

	worker := NewWorker(conn, NewProvisioner(conn, good))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	if errEnqueue := worker.Enqueue("t1"); errEnqueue != nil {
		t.Fatalf("re-enqueue: %v", errEnqueue)
	}
	waitForStatus(t, conn, "t1", models.TenantStatusActive)
}

func TestEnqueueFailsFastWhenQueueFull(t *testing.T) {
	conn := newFileRegistry(t)
	worker := NewWorker(conn, NewProvisioner(conn, newSQLiteCreator(t)))

	// Worker not started: fill the queue to capacity.
	for i := 0; i < defaultQueueCapacity; i++ {
		if errEnqueue := worker.Enqueue("t"); errEnqueue != nil {
			t.Fatalf("enqueue %d: %v", i, errEnqueue)
		}
	}
	if errEnqueue := worker.Enqueue("overflow"); !errors.Is(errEnqueue, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", errEnqueue)
	}
}
