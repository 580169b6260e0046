// Package app wires the control-plane registry, the provisioning pipeline, and
// the tenant-routing HTTP surface into one runnable server.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/config"
	"github.com/storekit-cloud/storekit/internal/db"
	"github.com/storekit-cloud/storekit/internal/flags"
	relayhttp "github.com/storekit-cloud/storekit/internal/http"
	adminapi "github.com/storekit-cloud/storekit/internal/http/api/admin"
	"github.com/storekit-cloud/storekit/internal/http/api/front"
	"github.com/storekit-cloud/storekit/internal/logging"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/provision"
	"github.com/storekit-cloud/storekit/internal/security"
	"github.com/storekit-cloud/storekit/internal/tenant"
	"github.com/storekit-cloud/storekit/internal/util"
	"github.com/storekit-cloud/storekit/internal/vault"
)

// vaultPurpose scopes the derived vault key to tenant connection strings.
const vaultPurpose = "tenant-connection-string"

// exemptPrefixes lists paths served without a bound tenant: health checks and
// the operator API, which addresses tenants explicitly instead of routing by
// slug.
var exemptPrefixes = []string{"/healthz", "/v0/admin"}

// envBootstrapAdminPassword seeds the first operator account when the admin
// table is empty.
const envBootstrapAdminPassword = "STOREKIT_ADMIN_PASSWORD"

// Migrate opens the control-plane database and runs registry migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.ControlDSN)
	if errOpen != nil {
		return errOpen
	}
	defer closeQuietly(conn)
	return db.Migrate(conn)
}

// RunServer boots the full server: registry, provisioning worker, flag
// service, and the HTTP surface. It blocks until ctx is canceled, then shuts
// down gracefully.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	if errLog := logging.Setup(cfg.Log); errLog != nil {
		return errLog
	}

	log.Infof("opening control-plane registry (dsn=%s)", util.MaskDSN(cfg.Database.ControlDSN))
	conn, errOpen := db.Open(cfg.Database.ControlDSN)
	if errOpen != nil {
		return errOpen
	}
	defer closeQuietly(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errAdmin := ensureBootstrapAdmin(ctx, conn); errAdmin != nil {
		return errAdmin
	}

	v, errVault := vault.New([]byte(cfg.Vault.MasterKey), vaultPurpose)
	if errVault != nil {
		return errVault
	}

	creator, errCreator := provision.NewCreator(
		cfg.Database.AdminDSN, cfg.Database.TenantDSNTemplate, cfg.Database.TenantDataDir)
	if errCreator != nil {
		return errCreator
	}
	provisioner := provision.NewProvisioner(conn, creator)
	worker := provision.NewWorker(conn, provisioner)
	worker.Start(ctx)
	if reconciler := provision.NewReconciler(conn, worker); reconciler != nil {
		reconciler.Start(ctx)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer closeRedisQuietly(rdb)
	}
	flagService := flags.NewService(conn, flags.NewCache(), rdb)
	flagService.StartInvalidationListener(ctx)

	resolver := tenant.NewResolver(conn, v)
	factory := tenant.NewFactory()

	engine := buildEngine(cfg, conn, resolver, factory, v, creator, worker, flagService)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errServe := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		errServe <- server.ListenAndServe()
	}()

	select {
	case err := <-errServe:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("server shutdown incomplete")
		return errShutdown
	}
	log.Info("server stopped")
	return nil
}

// buildEngine assembles the middleware chain. Order matters: the resolver
// binds the tenant, optional auth loads claims, and the ownership guard
// cross-checks the two before any route handler runs.
func buildEngine(
	cfg *config.Config,
	conn *gorm.DB,
	resolver *tenant.Resolver,
	factory *tenant.Factory,
	v *vault.Vault,
	creator provision.Creator,
	worker *provision.Worker,
	flagService *flags.Service,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.Use(relayhttp.TenantResolverMiddleware(resolver, exemptPrefixes))
	engine.Use(relayhttp.OptionalUserAuthMiddleware(cfg.JWT))
	engine.Use(relayhttp.TenantOwnershipMiddleware(exemptPrefixes))

	adminapi.RegisterAdminRoutes(engine, conn, cfg.JWT, v, creator, worker, flagService)
	front.RegisterFrontRoutes(engine, cfg.JWT, factory, flagService)

	return engine
}

// ensureBootstrapAdmin creates the first operator account when none exists.
// Without the bootstrap password in the environment it only logs a warning, so
// a fresh deployment is never locked out silently.
func ensureBootstrapAdmin(ctx context.Context, conn *gorm.DB) error {
	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return nil
	}

	password := strings.TrimSpace(os.Getenv(envBootstrapAdminPassword))
	if password == "" {
		log.Warnf("no admin accounts and %s unset; operator API is unreachable", envBootstrapAdminPassword)
		return nil
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	admin := models.Admin{Username: "admin", Password: hash, Active: true}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return errCreate
	}
	log.Info("bootstrap admin account created (username=admin)")
	return nil
}

func closeQuietly(conn *gorm.DB) {
	if errClose := db.Close(conn); errClose != nil {
		log.WithError(errClose).Warn("close control-plane database failed")
	}
}

func closeRedisQuietly(rdb *redis.Client) {
	if errClose := rdb.Close(); errClose != nil {
		log.WithError(errClose).Warn("close redis client failed")
	}
}
