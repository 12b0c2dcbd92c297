package migration

// ColumnType is the semantic type of a schema column. Each strategy maps
// it to the concrete SQL type of its dialect.
type ColumnType int

const (
	// ColumnInteger is a plain integer column.
	ColumnInteger ColumnType = iota
	// ColumnBigInt is a 64-bit integer column (INTEGER on SQLite, which
	// stores 64-bit values natively).
	ColumnBigInt
	// ColumnString is a bounded string column (VARCHAR(255)).
	ColumnString
	// ColumnText is an unbounded text column.
	ColumnText
	// ColumnTimestamp is a timestamp column.
	ColumnTimestamp
)

// ColumnSpec describes a column to ensure on an existing table. Defined
// immutably at the call site per migration step.
type ColumnSpec struct {
	Table string
	Name  string
	Type  ColumnType
	// Default is the raw SQL default expression. Empty means DEFAULT NULL.
	Default string
}

// TableColumn describes one column of a table to create.
type TableColumn struct {
	Name string
	Type ColumnType
	// PrimaryKey marks the auto-incrementing primary key column. The
	// dialect chooses the syntax (SERIAL vs INTEGER PRIMARY KEY
	// AUTOINCREMENT) and ignores Type for this column.
	PrimaryKey bool
	NotNull    bool
	Unique     bool
	// Default is the raw SQL default expression, empty for none.
	Default string
}

// TableSpec describes a table to create if absent, with its indexes.
type TableSpec struct {
	Name    string
	Columns []TableColumn
	Indexes []IndexSpec
}

// IndexSpec describes an index to ensure.
type IndexSpec struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// defaultExpr renders a column default, with the empty string meaning NULL.
func defaultExpr(v string) string {
	if v == "" {
		return "NULL"
	}
	return v
}
