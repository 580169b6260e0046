// Package provision drives the tenant provisioning pipeline: physical
// database creation, schema migration, and reference-data seeding, recorded
// as an append-only step audit trail and consumed from a durable work queue.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/storekit-cloud/storekit/internal/db"
	"github.com/storekit-cloud/storekit/internal/models"
)

// ErrInvalidDatabaseName rejects names outside the strict allow-list pattern.
var ErrInvalidDatabaseName = errors.New("provision: invalid database name")

// Creator provisions a physical database for a tenant and knows how to build
// the connection string for it. EnsureDatabase is idempotent: an existing
// database is treated as success so retries after partial failure are safe.
type Creator interface {
	EnsureDatabase(ctx context.Context, name string) (created bool, err error)
	DSNFor(name string) string
}

// NewCreator selects a creator implementation from the admin DSN dialect.
// For PostgreSQL, adminDSN must reach a maintenance database with CREATEDB
// rights and dsnTemplate must contain a %s slot for the database name. For
// SQLite, tenant databases are files under dataDir.
func NewCreator(adminDSN, dsnTemplate, dataDir string) (Creator, error) {
	dialect, errDetect := db.DetectDialect(adminDSN)
	if errDetect != nil {
		return nil, errDetect
	}
	switch dialect {
	case db.DialectPostgres:
		if !strings.Contains(dsnTemplate, "%s") {
			return nil, errors.New("provision: tenant dsn template missing %s slot")
		}
		return &postgresCreator{adminDSN: adminDSN, dsnTemplate: dsnTemplate}, nil
	case db.DialectSQLite:
		if strings.TrimSpace(dataDir) == "" {
			return nil, errors.New("provision: sqlite data dir required")
		}
		return &sqliteCreator{dataDir: dataDir}, nil
	default:
		return nil, fmt.Errorf("provision: unsupported dialect: %s", dialect)
	}
}

// postgresCreator creates tenant databases on a shared PostgreSQL cluster.
type postgresCreator struct {
	adminDSN    string
	dsnTemplate string
}

func (c *postgresCreator) EnsureDatabase(ctx context.Context, name string) (bool, error) {
	if !models.ValidDatabaseName(name) {
		return false, fmt.Errorf("%w: %s", ErrInvalidDatabaseName, name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, errParse := pgx.ParseConfig(c.adminDSN)
	if errParse != nil {
		return false, fmt.Errorf("provision: parse admin dsn: %w", errParse)
	}
	adminDB := stdlib.OpenDB(*cfg)
	defer func() { _ = adminDB.Close() }()

	var exists bool
	errCheck := adminDB.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if errCheck != nil {
		return false, fmt.Errorf("provision: check database: %w", errCheck)
	}
	if exists {
		return false, nil
	}

	// CREATE DATABASE cannot be parameterized; the name passed the allow-list
	// pattern above and is additionally quoted.
	if _, errCreate := adminDB.ExecContext(ctx, "CREATE DATABASE "+db.QuoteIdentifier(name)); errCreate != nil {
		if isDuplicateDatabase(errCreate) {
			return false, nil
		}
		return false, fmt.Errorf("provision: create database: %w", errCreate)
	}
	return true, nil
}

func (c *postgresCreator) DSNFor(name string) string {
	return fmt.Sprintf(c.dsnTemplate, name)
}

// isDuplicateDatabase matches the race where a concurrent creation won
// between the existence check and CREATE DATABASE.
func isDuplicateDatabase(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "42P04"
	}
	return false
}

// sqliteCreator creates tenant databases as files under a data directory.
type sqliteCreator struct {
	dataDir string
}

func (c *sqliteCreator) EnsureDatabase(ctx context.Context, name string) (bool, error) {
	if !models.ValidDatabaseName(name) {
		return false, fmt.Errorf("%w: %s", ErrInvalidDatabaseName, name)
	}
	if ctx != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	path := c.path(name)
	if _, errStat := os.Stat(path); errStat == nil {
		return false, nil
	} else if !errors.Is(errStat, os.ErrNotExist) {
		return false, fmt.Errorf("provision: stat database file: %w", errStat)
	}

	if errMkdir := os.MkdirAll(c.dataDir, 0755); errMkdir != nil {
		return false, fmt.Errorf("provision: create data dir: %w", errMkdir)
	}
	file, errCreate := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errCreate != nil {
		if errors.Is(errCreate, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("provision: create database file: %w", errCreate)
	}
	if errClose := file.Close(); errClose != nil {
		return false, fmt.Errorf("provision: close database file: %w", errClose)
	}
	return true, nil
}

func (c *sqliteCreator) DSNFor(name string) string {
	return c.path(name)
}

func (c *sqliteCreator) path(name string) string {
	return filepath.Join(c.dataDir, name+".db")
}

var (
	_ Creator = (*postgresCreator)(nil)
	_ Creator = (*sqliteCreator)(nil)
)
