package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour of the connected store.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form. Placeholders
// inside single-quoted literals are left untouched.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// QuoteIdent quotes a column identifier taken from an input file header.
// Postgres identifiers are folded to lower case first, matching how unquoted
// names in the schema DDL are stored.
func (d Dialect) QuoteIdent(name string) string {
	switch d {
	case MySQL:
		return "`" + name + "`"
	case Postgres:
		return `"` + strings.ToLower(name) + `"`
	default:
		return `"` + name + `"`
	}
}

// InsertInto returns the statement prefix and suffix for an insert into table.
// With ignoreDuplicates, rows violating a unique constraint are dropped silently.
func (d Dialect) InsertInto(table string, ignoreDuplicates bool) (prefix, suffix string) {
	if !ignoreDuplicates {
		return "INSERT INTO " + table, ""
	}
	switch d {
	case MySQL:
		return "INSERT IGNORE INTO " + table, ""
	case Postgres:
		return "INSERT INTO " + table, " ON CONFLICT DO NOTHING"
	default:
		return "INSERT OR IGNORE INTO " + table, ""
	}
}

// SupportsLastInsertID reports whether sql.Result.LastInsertId works for the dialect.
func (d Dialect) SupportsLastInsertID() bool {
	return d != Postgres
}
