package migration

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// unguardedStrategy targets SQLite. ALTER TABLE ADD COLUMN has no
// IF NOT EXISTS form there and a duplicate-column error aborts the
// statement, so the absence check must happen before issuing DDL rather
// than by catching the error afterwards. Table and index creation do
// have safe IF NOT EXISTS syntax and are issued unconditionally.
//
// The check-then-act gap means two migrator instances running at once
// can both pass the check and one will fail on the ALTER; concurrent
// invocations against the same database are not supported.
type unguardedStrategy struct{}

func (unguardedStrategy) Type() DatabaseType { return DatabaseTypeSQLite }

func (unguardedStrategy) QuoteTable(name string) string { return name }

func (s unguardedStrategy) EnsureColumn(db *gorm.DB, spec ColumnSpec) (ColumnResult, error) {
	existing, err := existingColumns(db, spec.Table)
	if err != nil {
		return 0, fmt.Errorf("inspect table %s: %w", spec.Table, err)
	}
	if _, ok := existing[spec.Name]; ok {
		return ColumnAlreadyPresent, nil
	}
	if err := db.Exec(s.addColumnSQL(spec)).Error; err != nil {
		// Pre-check said absent but the DDL still failed (race or
		// unexpected backend state). Fatal; prior columns stay applied.
		return 0, fmt.Errorf("add column %s.%s: %w", spec.Table, spec.Name, err)
	}
	return ColumnApplied, nil
}

func (s unguardedStrategy) EnsureTable(db *gorm.DB, spec TableSpec) error {
	if err := db.Exec(s.createTableSQL(spec)).Error; err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (s unguardedStrategy) EnsureIndex(db *gorm.DB, spec IndexSpec) error {
	if err := db.Exec(s.createIndexSQL(spec)).Error; err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	return nil
}

func (s unguardedStrategy) BackfillLegacyQuota(db *gorm.DB, table string) (BackfillResult, error) {
	existing, err := existingColumns(db, table)
	if err != nil {
		return 0, fmt.Errorf("inspect table %s: %w", table, err)
	}
	if _, ok := existing["storage_quota_bytes"]; !ok {
		return BackfillSkipped, nil
	}
	if _, ok := existing["storage_used_bytes"]; !ok {
		return BackfillSkipped, nil
	}
	if err := db.Exec(backfillStatement(table)).Error; err != nil {
		return 0, fmt.Errorf("backfill legacy quota on %s: %w", table, err)
	}
	return BackfillApplied, nil
}

func (s unguardedStrategy) addColumnSQL(spec ColumnSpec) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s DEFAULT %s",
		spec.Table, spec.Name, s.columnType(spec.Type), defaultExpr(spec.Default))
}

func (s unguardedStrategy) createTableSQL(spec TableSpec) string {
	cols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		cols = append(cols, s.columnDDL(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		spec.Name, strings.Join(cols, ", "))
}

func (s unguardedStrategy) createIndexSQL(spec IndexSpec) string {
	kind := "INDEX"
	if spec.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, spec.Name, spec.Table, strings.Join(spec.Columns, ", "))
}

func (s unguardedStrategy) columnDDL(c TableColumn) string {
	if c.PrimaryKey {
		return c.Name + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	parts := []string{c.Name, s.columnType(c.Type)}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT "+c.Default)
	}
	return strings.Join(parts, " ")
}

func (unguardedStrategy) columnType(t ColumnType) string {
	switch t {
	case ColumnInteger, ColumnBigInt:
		return "INTEGER"
	case ColumnString:
		return "VARCHAR(255)"
	case ColumnText:
		return "TEXT"
	case ColumnTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
