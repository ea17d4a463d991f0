package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Migrate applies every pending up migration found at the root of source.
func Migrate(dsn string, source fs.FS, logger *zap.Logger) error {
	return withMigrator(dsn, source, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("No pending migrations")
				return nil
			}
			return fmt.Errorf("run migrations: %w", err)
		}

		version, _, _ := m.Version()
		logger.Info("Migrations applied", zap.Uint("version", version))
		return nil
	})
}

// MigrateDown rolls back steps migrations (at least one).
func MigrateDown(dsn string, source fs.FS, steps int, logger *zap.Logger) error {
	steps = max(steps, 1)
	return withMigrator(dsn, source, func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("No migrations to roll back")
				return nil
			}
			return fmt.Errorf("rollback migrations: %w", err)
		}
		logger.Info("Migrations rolled back", zap.Int("steps", steps))
		return nil
	})
}

// withMigrator runs fn on its own connection, since closing the migrator
// closes the handle it was given.
func withMigrator(dsn string, source fs.FS, fn func(*migrate.Migrate) error) error {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("open database connection: %w", err)
	}
	defer conn.Close()

	src, err := iofs.New(source, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(conn, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m)
}
