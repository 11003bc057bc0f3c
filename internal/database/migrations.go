package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/tdi-genomics/tdisql/internal/domain"
)

// The reference schema mirrors the production TDI schema closely enough to run
// loads and queries against a scratch store. Production stores are provisioned
// outside this module.
//
//go:embed schema
var referenceSchema embed.FS

// MigrationRunner applies the reference schema to a scratch database
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner opens a dedicated connection for config and prepares the
// reference schema for its dialect. Only sqlite and postgres are supported.
func NewMigrationRunner(ctx context.Context, config domain.DatabaseConfig, logger *logrus.Logger) (*MigrationRunner, error) {
	dialect, err := ParseDialect(config.Driver)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(referenceSchema, "schema/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("no reference schema for %s: %w", dialect, err)
	}

	sqlDB, err := open(dialect, config)
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	var m *migrate.Migrate
	switch dialect {
	case Postgres:
		driver, derr := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
		if derr != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("creating migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "pgx5", driver)
	case SQLite:
		driver, derr := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
		if derr != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("creating migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite", driver)
	default:
		sqlDB.Close()
		return nil, fmt.Errorf("no reference schema for %s", dialect)
	}
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}

	return &MigrationRunner{
		migrate: m,
		log:     logger,
	}, nil
}

// Up runs all pending migrations
func (mr *MigrationRunner) Up(ctx context.Context) error {
	mr.log.Info("Applying reference schema")

	if err := mr.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mr.log.Info("Reference schema already applied")
			return nil
		}
		return fmt.Errorf("running migrations up: %w", err)
	}

	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not get migration version after up")
	} else {
		mr.log.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Reference schema applied")
	}

	return nil
}

// Down drops the reference schema
func (mr *MigrationRunner) Down(ctx context.Context) error {
	if err := mr.migrate.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("running migrations down: %w", err)
	}
	return nil
}

// Close closes the migration runner and its connection
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
