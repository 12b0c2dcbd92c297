package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KohakuBlueleaf/kohaku-hub-migrate/internal/logging"
)

// Tables receiving the quota columns. Both pre-exist in any hub database.
const (
	TableUser         = "user"
	TableOrganization = "organization"
)

// quotaTables lists the quota-bearing entity tables in migration order.
var quotaTables = []string{TableUser, TableOrganization}

// QuotaColumns returns the four quota column specs for table. The two
// quota limits default to NULL (no limit); the two usage counters
// default to zero.
func QuotaColumns(table string) []ColumnSpec {
	return []ColumnSpec{
		{Table: table, Name: "private_quota_bytes", Type: ColumnBigInt},
		{Table: table, Name: "public_quota_bytes", Type: ColumnBigInt},
		{Table: table, Name: "private_used_bytes", Type: ColumnBigInt, Default: "0"},
		{Table: table, Name: "public_used_bytes", Type: ColumnBigInt, Default: "0"},
	}
}

// SSHKeyTable returns the credential-key table spec and its indexes.
func SSHKeyTable() TableSpec {
	return TableSpec{
		Name: "sshkey",
		Columns: []TableColumn{
			{Name: "id", PrimaryKey: true},
			{Name: "user_id", Type: ColumnInteger, NotNull: true},
			{Name: "key_type", Type: ColumnString, NotNull: true},
			{Name: "public_key", Type: ColumnText, NotNull: true},
			{Name: "fingerprint", Type: ColumnString, NotNull: true, Unique: true},
			{Name: "title", Type: ColumnString, NotNull: true},
			{Name: "last_used", Type: ColumnTimestamp},
			{Name: "created_at", Type: ColumnTimestamp, NotNull: true, Default: "CURRENT_TIMESTAMP"},
		},
		Indexes: []IndexSpec{
			{Name: "sshkey_user_id", Table: "sshkey", Columns: []string{"user_id"}},
			{Name: "sshkey_fingerprint", Table: "sshkey", Columns: []string{"fingerprint"}},
			// One owner may register a given fingerprint once. The
			// column-level UNIQUE on fingerprint is the stronger global
			// constraint layered beneath this composite one: no two
			// owners may collide on the same fingerprint either.
			{Name: "sshkey_user_fingerprint", Table: "sshkey", Columns: []string{"user_id", "fingerprint"}, Unique: true},
		},
	}
}

// Runner sequences the migration steps against one shared connection.
// Steps commit independently; a failed run leaves a partially migrated
// but self-consistent and safely re-runnable schema.
type Runner struct {
	db       *gorm.DB
	strategy Strategy
	rep      *logging.Reporter
}

// NewRunner selects the dialect strategy for backend. The backend kind
// is an explicit input here rather than ambient configuration state.
func NewRunner(db *gorm.DB, backend DatabaseType, rep *logging.Reporter) (*Runner, error) {
	s, err := NewStrategy(backend)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, strategy: s, rep: rep}, nil
}

// Run executes the full migration: quota columns on both entity tables,
// the sshkey table with its indexes, then the legacy quota backfill.
func (r *Runner) Run(ctx context.Context) error {
	db := r.db.WithContext(ctx)

	r.rep.Info("Starting database migration",
		zap.String("backend", string(r.strategy.Type())))

	for _, table := range quotaTables {
		if err := r.migrateQuotaColumns(db, table); err != nil {
			return err
		}
	}
	if err := r.createSSHKeyTable(db); err != nil {
		return err
	}
	for _, table := range quotaTables {
		if err := r.backfillLegacyQuota(db, table); err != nil {
			return err
		}
	}

	r.rep.Success("Migration completed successfully")
	return nil
}

func (r *Runner) migrateQuotaColumns(db *gorm.DB, table string) error {
	r.rep.Info(fmt.Sprintf("Adding quota columns to %s table", table))

	for _, spec := range QuotaColumns(table) {
		res, err := r.strategy.EnsureColumn(db, spec)
		if err != nil {
			return err
		}
		switch res {
		case ColumnApplied:
			r.rep.Success(fmt.Sprintf("Added %s.%s", table, spec.Name))
		case ColumnAlreadyPresent:
			r.rep.Warn(fmt.Sprintf("Column %s.%s already exists, skipping", table, spec.Name))
		}
	}
	return nil
}

func (r *Runner) createSSHKeyTable(db *gorm.DB) error {
	spec := SSHKeyTable()

	r.rep.Info(fmt.Sprintf("Creating %s table", spec.Name))
	if err := r.strategy.EnsureTable(db, spec); err != nil {
		return err
	}
	r.rep.Success(fmt.Sprintf("Created %s table", spec.Name))

	for _, idx := range spec.Indexes {
		if err := r.strategy.EnsureIndex(db, idx); err != nil {
			return err
		}
		r.rep.Success(fmt.Sprintf("Created index %s", idx.Name))
	}
	return nil
}

func (r *Runner) backfillLegacyQuota(db *gorm.DB, table string) error {
	res, err := r.strategy.BackfillLegacyQuota(db, table)
	if err != nil {
		return err
	}
	switch res {
	case BackfillApplied:
		r.rep.Success(fmt.Sprintf("Copied legacy storage quota on %s", table))
	case BackfillSkipped:
		// A schema with no legacy columns is the normal case for fresh
		// databases, plain progress rather than an anomaly.
		r.rep.Info(fmt.Sprintf("No legacy storage quota columns on %s, skipping backfill", table))
	}
	return nil
}

// Verify probes the migrated schema with plain row queries: selecting a
// missing column or table fails the statement, so no catalog
// introspection is needed and the guarded backend is never inspected.
func (r *Runner) Verify(ctx context.Context) error {
	db := r.db.WithContext(ctx)

	for _, table := range quotaTables {
		stmt := fmt.Sprintf(
			"SELECT private_quota_bytes, public_quota_bytes, private_used_bytes, public_used_bytes FROM %s LIMIT 1",
			r.strategy.QuoteTable(table))
		rows, err := db.Raw(stmt).Rows()
		if err != nil {
			return fmt.Errorf("verify quota columns on %s: %w", table, err)
		}
		rows.Close()
		r.rep.Success(fmt.Sprintf("Verified quota columns on %s", table))
	}

	var keys int64
	if err := db.Raw("SELECT COUNT(*) FROM sshkey").Scan(&keys).Error; err != nil {
		return fmt.Errorf("verify sshkey table: %w", err)
	}
	r.rep.Success("Verified sshkey table", zap.Int64("keys", keys))
	return nil
}
