package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/tdi-genomics/tdisql/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the sql.DB handle with the dialect it speaks
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
	log     *logrus.Logger
}

// New wraps an already opened handle.
func New(sqlDB *sql.DB, dialect Dialect, logger *logrus.Logger) *DB {
	return &DB{
		SQL:     sqlDB,
		Dialect: dialect,
		log:     logger,
	}
}

// NewConnection opens the configured database and verifies it is reachable.
// The handle is capped at MaxOpenConns connections (one by default), so
// statements execute strictly one after another.
func NewConnection(ctx context.Context, config domain.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	dialect, err := ParseDialect(config.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := open(dialect, config)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}

	maxConns := config.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	pingCtx := ctx
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"driver":    dialect,
		"host":      config.Host,
		"port":      config.Port,
		"database":  config.Database,
		"max_conns": maxConns,
	}).Info("Database connection established")

	return New(sqlDB, dialect, logger), nil
}

func open(dialect Dialect, config domain.DatabaseConfig) (*sql.DB, error) {
	switch dialect {
	case MySQL:
		cfg := mysql.NewConfig()
		cfg.User = config.Username
		cfg.Passwd = config.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
		cfg.DBName = config.Database
		cfg.ParseTime = true
		if config.ConnectTimeout > 0 {
			cfg.Timeout = config.ConnectTimeout
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("building mysql connector: %w", err)
		}
		return sql.OpenDB(connector), nil

	case Postgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			config.Host, config.Port, config.Database, config.Username, config.Password, sslMode(config.SSLMode),
		)
		if config.ConnectTimeout > 0 {
			dsn += fmt.Sprintf(" connect_timeout=%d", int(config.ConnectTimeout/time.Second))
		}
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing database config: %w", err)
		}
		return stdlib.OpenDB(*connConfig), nil

	default:
		return sql.Open("sqlite", SQLiteDSN(config.Database))
	}
}

// SQLiteDSN builds a modernc sqlite DSN for a database file with foreign keys enforced.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func sslMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

// Close closes the database handle
func (db *DB) Close() error {
	if db.SQL == nil {
		return nil
	}
	if err := db.SQL.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	db.log.Info("Database connection closed")
	return nil
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.SQL.Stats()
}

// Rebind rewrites placeholders in query for the connected dialect.
func (db *DB) Rebind(query string) string {
	return db.Dialect.Rebind(query)
}

// LookupID resolves value in table.matchColumn to the single idColumn it maps to.
// Zero or several matches yield a *domain.LookupError.
func (db *DB) LookupID(ctx context.Context, q Querier, table, idColumn, matchColumn, value string) (int64, error) {
	query := db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", idColumn, table, matchColumn))

	rows, err := q.QueryContext(ctx, query, value)
	if err != nil {
		return 0, fmt.Errorf("looking up %s.%s: %w", table, matchColumn, err)
	}
	defer rows.Close()

	var id int64
	matches := 0
	for rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scanning %s.%s: %w", table, idColumn, err)
		}
		matches++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating %s rows: %w", table, err)
	}

	if matches != 1 {
		return 0, &domain.LookupError{Table: table, Column: matchColumn, Value: value, Matches: matches}
	}
	return id, nil
}

// InsertID executes an insert and returns the key the store generated for idColumn.
func (db *DB) InsertID(ctx context.Context, q Querier, query, idColumn string, args ...any) (int64, error) {
	if !db.Dialect.SupportsLastInsertID() {
		var id int64
		err := q.QueryRowContext(ctx, db.Rebind(query+" RETURNING "+idColumn), args...).Scan(&id)
		if err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := q.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading generated key: %w", err)
	}
	return id, nil
}
