// Package dbtest provisions scratch TDI stores for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tdi-genomics/tdisql/internal/database"
	"github.com/tdi-genomics/tdisql/internal/domain"
)

// Logger returns a logger that only reports warnings and above.
func Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// NewSQLite creates a sqlite file in a temporary directory, applies the
// reference schema and returns a single-connection handle to it.
func NewSQLite(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	logger := Logger()

	config := domain.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "tdi.db"),
	}

	runner, err := database.NewMigrationRunner(ctx, config, logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))
	require.NoError(t, runner.Close())

	db, err := database.NewConnection(ctx, config, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.SQL.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// Exec runs a setup statement, failing the test on error.
func Exec(t *testing.T, db *database.DB, query string, args ...any) {
	t.Helper()
	_, err := db.SQL.Exec(db.Rebind(query), args...)
	require.NoError(t, err)
}
