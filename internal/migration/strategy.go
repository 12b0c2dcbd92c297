package migration

import (
	"strings"

	"gorm.io/gorm"
)

// ColumnResult reports the outcome of an EnsureColumn call.
type ColumnResult int

const (
	// ColumnApplied means the column was ensured by issuing DDL.
	ColumnApplied ColumnResult = iota
	// ColumnAlreadyPresent means the column already existed and the step
	// was a no-op.
	ColumnAlreadyPresent
)

// BackfillResult reports the outcome of a legacy quota backfill.
type BackfillResult int

const (
	// BackfillApplied means legacy values were copied.
	BackfillApplied BackfillResult = iota
	// BackfillSkipped means the legacy columns are absent.
	BackfillSkipped
)

// Strategy encapsulates the dialect-specific DDL behavior for one
// backend. Each implementation is independently testable against a fake
// or file-backed database.
type Strategy interface {
	// Type returns the backend this strategy targets.
	Type() DatabaseType

	// QuoteTable quotes a table name for use in raw SQL. PostgreSQL
	// needs this for reserved names such as "user".
	QuoteTable(name string) string

	// EnsureColumn adds the column if it is absent. A column is added at
	// most once; if already present the step is a no-op regardless of
	// where the prior addition came from.
	EnsureColumn(db *gorm.DB, spec ColumnSpec) (ColumnResult, error)

	// EnsureTable creates the table if absent.
	EnsureTable(db *gorm.DB, spec TableSpec) error

	// EnsureIndex creates the index if absent.
	EnsureIndex(db *gorm.DB, spec IndexSpec) error

	// BackfillLegacyQuota copies storage_quota_bytes/storage_used_bytes
	// into the private quota columns for rows that still have no private
	// quota set, skipping when the legacy columns are absent.
	BackfillLegacyQuota(db *gorm.DB, table string) (BackfillResult, error)
}

// NewStrategy returns the strategy for backend.
func NewStrategy(backend DatabaseType) (Strategy, error) {
	switch backend {
	case DatabaseTypePostgres:
		return guardedStrategy{}, nil
	case DatabaseTypeSQLite:
		return unguardedStrategy{}, nil
	default:
		return nil, errUnsupported(backend)
	}
}

// isAlreadyExists reports whether err identifies an object-already-exists
// condition. Only these failures are benign; anything else must surface
// instead of being suppressed.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate column")
}

// isUndefinedColumn reports whether err identifies a reference to a
// column that does not exist.
func isUndefinedColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such column")
}

// backfillStatement builds the copy-once UPDATE moving legacy storage
// quotas into the private quota columns. Rows whose private quota is
// already set are left untouched. The table name must be pre-quoted.
func backfillStatement(table string) string {
	return "UPDATE " + table + " SET private_quota_bytes = storage_quota_bytes, " +
		"private_used_bytes = storage_used_bytes " +
		"WHERE (storage_quota_bytes IS NOT NULL OR storage_used_bytes IS NOT NULL) " +
		"AND private_quota_bytes IS NULL"
}
