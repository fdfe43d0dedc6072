package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	_ "github.com/trinodb/trino-go-client/trino" // Trino driver
)

//go:embed schema/*.sql
var schemas embed.FS

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
	Trino    = "trino"
)

// Dialect captures the differences between the supported stores.
type Dialect struct {
	Name       string
	DriverName string
	// Transactions is false for stores that reject BEGIN through database/sql.
	Transactions bool
	// Constraints is false when the store cannot enforce UNIQUE on swift_code.
	Constraints bool
	// SnapshotIsolation is the level used for multi-query reads.
	SnapshotIsolation sql.IsolationLevel
	dollarParams      bool
}

// DialectFor returns the dialect for a configured database type.
func DialectFor(dbType string) (Dialect, error) {
	switch strings.ToLower(dbType) {
	case Postgres:
		return Dialect{
			Name:              Postgres,
			DriverName:        "postgres",
			Transactions:      true,
			Constraints:       true,
			SnapshotIsolation: sql.LevelRepeatableRead,
			dollarParams:      true,
		}, nil
	case SQLite:
		return Dialect{
			Name:              SQLite,
			DriverName:        "sqlite3",
			Transactions:      true,
			Constraints:       true,
			SnapshotIsolation: sql.LevelDefault,
		}, nil
	case Trino:
		return Dialect{
			Name:       Trino,
			DriverName: "trino",
		}, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.dollarParams {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			sb.WriteByte(query[i])
			continue
		}
		n++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

// IsUniqueViolation reports whether err is the store rejecting a duplicate key.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	switch d.Name {
	case Postgres:
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	case SQLite:
		var sqliteErr sqlite3.Error
		return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	default:
		return false
	}
}

// Schema returns the embedded DDL for the dialect with the table name filled in.
func (d Dialect) Schema(table string) (string, error) {
	raw, err := schemas.ReadFile("schema/" + d.Name + ".sql")
	if err != nil {
		return "", fmt.Errorf("failed to read embedded schema for %s: %w", d.Name, err)
	}
	return strings.ReplaceAll(string(raw), "{{table}}", table), nil
}
