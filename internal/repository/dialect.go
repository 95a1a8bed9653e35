package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the few SQL differences between the supported engines.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	Name         string
	GooseDialect string
	numbered     bool
	forUpdate    string
}

var (
	Postgres = Dialect{Name: "postgres", GooseDialect: "pgx", numbered: true, forUpdate: " FOR UPDATE"}
	// SQLite has no row locks; writers are serialized by the single connection.
	SQLite = Dialect{Name: "sqlite", GooseDialect: "sqlite3"}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// Rebind rewrites '?' placeholders to $1..$n for numbered dialects.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate returns the row-lock suffix for SELECT statements.
func (d Dialect) ForUpdate() string {
	return d.forUpdate
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			strings.Contains(sqErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
