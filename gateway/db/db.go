// Package db opens the sqlite database that backs pool snapshots when the
// sqlite snapshot backend is selected.
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pushchain/push-rpc-gateway/gateway/store"
)

const (
	// InMemorySQLiteDSN opens a private database that lives as long as its connection
	InMemorySQLiteDSN = ":memory:"

	// fileDSNParams enables WAL so readers never block the snapshot writer
	fileDSNParams = "?_journal_mode=WAL&_busy_timeout=5000&mode=rwc"

	dbDirPermissions = 0o750
)

// schemaModels are auto-migrated on open
var schemaModels = []any{
	&store.PoolSnapshot{},
}

// DB wraps a GORM client bound to one sqlite database.
type DB struct {
	client *gorm.DB
	path   string
}

// OpenFileDB opens or creates <dir>/<filename>, creating dir when missing.
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, dbDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to prepare database path %s", dir)
	}
	path := filepath.Join(dir, filename)
	return openSQLite(path, path+fileDSNParams, migrateSchema)
}

// OpenInMemoryDB opens a non-persistent database, used by tests.
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return openSQLite(InMemorySQLiteDSN, InMemorySQLiteDSN, migrateSchema)
}

func openSQLite(path, dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database %s", path)
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// one connection: keeps :memory: alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	d := &DB{client: client, path: path}
	if migrateSchema {
		if err := d.Migrate(); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return d, nil
}

// Migrate creates or updates the snapshot tables
func (d *DB) Migrate() error {
	if err := d.client.AutoMigrate(schemaModels...); err != nil {
		return errors.Wrap(err, "failed to auto-migrate database schema")
	}
	return nil
}

// Client returns the GORM handle for queries
func (d *DB) Client() *gorm.DB {
	return d.client
}

// Path returns the database file, or ":memory:"
func (d *DB) Path() string {
	return d.path
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database connection")
}
