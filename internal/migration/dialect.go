package migration

import (
	"fmt"
	"strings"
)

// DatabaseType represents the type of database backend.
type DatabaseType string

const (
	// DatabaseTypePostgres represents PostgreSQL, whose DDL supports
	// declarative IF NOT EXISTS guards for columns and indexes.
	DatabaseTypePostgres DatabaseType = "postgres"
	// DatabaseTypeSQLite represents SQLite, which lacks such a guard for
	// ADD COLUMN and requires catalog introspection before mutating.
	DatabaseTypeSQLite DatabaseType = "sqlite"
)

// ParseDatabaseType parses a database type string
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

func errUnsupported(t DatabaseType) error {
	return fmt.Errorf("unsupported database type: %s", t)
}
