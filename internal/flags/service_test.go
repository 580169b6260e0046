package flags

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/storekit-cloud/storekit/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Plan{}, &models.TenantFeatureOverride{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	service := NewService(conn, NewCache(), nil)
	if service == nil {
		t.Fatal("nil service")
	}
	return service, conn
}

func seedPlan(t *testing.T, conn *gorm.DB, defaults string) uint64 {
	t.Helper()
	plan := models.Plan{
		Code:            "BASIC",
		Name:            "Basic",
		FeatureDefaults: datatypes.JSON(defaults),
	}
	if errCreate := conn.Create(&plan).Error; errCreate != nil {
		t.Fatalf("create plan: %v", errCreate)
	}
	return plan.ID
}

func TestGetPlanDefaultsOverGlobalDefaults(t *testing.T) {
	service, conn := newTestService(t)
	planID := seedPlan(t, conn, `{"max_users": 25, "api_access": true}`)

	got, errGet := service.Get(context.Background(), "t1", &planID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if got.MaxUsers != 25 || !got.APIAccess {
		t.Fatalf("plan defaults not applied: %+v", got)
	}
	if got.OrderLimitPerDay != Defaults().OrderLimitPerDay {
		t.Fatalf("unset keys must keep global defaults: %+v", got)
	}
}

func TestGetOverrideWinsOverPlanDefault(t *testing.T) {
	service, conn := newTestService(t)
	planID := seedPlan(t, conn, `{"max_users": 25}`)
	override := models.TenantFeatureOverride{
		TenantID: "t1",
		Key:      string(KeyMaxUsers),
		Value:    datatypes.JSON(`100`),
	}
	if errCreate := conn.Create(&override).Error; errCreate != nil {
		t.Fatalf("create override: %v", errCreate)
	}

	got, errGet := service.Get(context.Background(), "t1", &planID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if got.MaxUsers != 100 {
		t.Fatalf("override must win over plan default, got %d", got.MaxUsers)
	}
}

func TestGetCachesUntilInvalidated(t *testing.T) {
	service, conn := newTestService(t)
	planID := seedPlan(t, conn, `{"max_users": 25}`)

	first, errGet := service.Get(context.Background(), "t1", &planID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if first.MaxUsers != 25 {
		t.Fatalf("unexpected flags: %+v", first)
	}

	// A registry write without invalidation is not observed.
	if errUpdate := conn.Model(&models.Plan{}).
		Where("id = ?", planID).
		Update("feature_defaults", datatypes.JSON(`{"max_users": 999}`)).Error; errUpdate != nil {
		t.Fatalf("update plan: %v", errUpdate)
	}
	cached, errGet := service.Get(context.Background(), "t1", &planID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if cached.MaxUsers != 25 {
		t.Fatalf("expected cached value, got %d", cached.MaxUsers)
	}

	service.Invalidate(context.Background(), "t1")
	recomputed, errGet := service.Get(context.Background(), "t1", &planID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if recomputed.MaxUsers != 999 {
		t.Fatalf("expected recomputed value after invalidation, got %d", recomputed.MaxUsers)
	}
}

func TestGetNilPlanUsesGlobalDefaults(t *testing.T) {
	service, _ := newTestService(t)

	got, errGet := service.Get(context.Background(), "t1", nil)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if got != Defaults() {
		t.Fatalf("expected global defaults, got %+v", got)
	}
}

func TestResolveIgnoresUnknownKeys(t *testing.T) {
	resolved := Resolve(map[string]json.RawMessage{
		"retired_flag": json.RawMessage(`true`),
		"max_users":    json.RawMessage(`"not-a-number"`),
	}, nil)
	if resolved != Defaults() {
		t.Fatalf("unknown or malformed keys must not change defaults: %+v", resolved)
	}
}
