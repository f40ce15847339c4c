// Package migrations owns the embedded schema for the postgres and sqlite
// adapters and wraps golang-migrate to apply it.
package migrations

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/samber/oops"
	_ "modernc.org/sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Latest is the newest schema version shipped in this binary.
const Latest uint = 2

// migrateIface is the subset of *migrate.Migrate the Migrator uses.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded migrations for one adapter.
type Migrator struct {
	m  migrateIface
	db *sql.DB
}

// New opens dsn with the driver for adapter ("postgres" or "sqlite") and
// prepares a migrator over the matching embedded directory.
func New(adapter, dsn string) (*Migrator, error) {
	if adapter != "postgres" && adapter != "sqlite" {
		return nil, oops.Code("MIGRATION_ADAPTER_UNSUPPORTED").
			Errorf("migrations only exist for postgres and sqlite, not %q", adapter)
	}

	db, err := sql.Open(adapter, dsn)
	if err != nil {
		return nil, oops.Code("MIGRATION_OPEN_FAILED").With("adapter", adapter).Wrap(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, oops.Code("MIGRATION_PING_FAILED").With("adapter", adapter).Wrap(err)
	}

	var driver database.Driver
	switch adapter {
	case "postgres":
		driver, err = migratepg.WithInstance(db, &migratepg.Config{})
	case "sqlite":
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		db.Close()
		return nil, oops.Code("MIGRATION_DRIVER_FAILED").With("adapter", adapter).Wrap(err)
	}

	source, err := iofs.New(files, adapter)
	if err != nil {
		db.Close()
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("adapter", adapter).Wrap(err)
	}

	m, err := migrate.NewWithInstance("iofs", source, adapter, driver)
	if err != nil {
		_ = source.Close()
		db.Close()
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("adapter", adapter).Wrap(err)
	}

	return &Migrator{m: m, db: db}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back every migration, dropping all tables.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps applies n migrations. Positive n migrates up, negative n migrates down.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version returns the current version and dirty flag; 0 when nothing is applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force sets the recorded version without running anything. Only for
// recovering from a dirty state after the schema was fixed by hand.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("MIGRATION_INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the source and the database handle.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if m.db != nil {
		_ = m.db.Close()
	}
	return errors.Join(srcErr, dbErr)
}
