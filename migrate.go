package main

import (
	"log/slog"

	"github.com/example/blogapi/internal/migrations"
	"github.com/samber/oops"
)

// ApplyMigrations brings the adapter's schema to migrations.Latest. A dirty
// database is refused; it needs `migrate force` after a manual fix.
func ApplyMigrations(adapter, dsn string, log *slog.Logger) error {
	m, err := migrations.New(adapter, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		return oops.Code("MIGRATION_DIRTY").With("version", version).
			Errorf("database is in a dirty state (version %d), manual intervention required", version)
	}

	if err := m.Up(); err != nil {
		return err
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return err
	}
	if newVersion != version {
		log.Info("migrated database", "adapter", adapter, "from", version, "to", newVersion)
	} else {
		log.Info("database is up to date", "adapter", adapter, "version", version)
	}
	return nil
}
