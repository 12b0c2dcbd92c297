package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/KohakuBlueleaf/kohaku-hub-migrate/internal/logging"
)

func newTestReporter(t *testing.T) (*logging.Reporter, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	return logging.NewReporter(zap.New(core)), logs
}

func successCount(logs *observer.ObservedLogs) int {
	n := 0
	for _, e := range logs.All() {
		for _, f := range e.Context {
			if f.Key == "event" && f.String == "success" {
				n++
			}
		}
	}
	return n
}

func warnMessages(logs *observer.ObservedLogs) []string {
	var msgs []string
	for _, e := range logs.All() {
		if e.Level == zapcore.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func infoMessages(logs *observer.ObservedLogs) []string {
	var msgs []string
	for _, e := range logs.All() {
		if e.Level == zapcore.InfoLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func openSQLite(t *testing.T, opts ...gorm.Option) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hub.db")
	if len(opts) == 0 {
		opts = []gorm.Option{&gorm.Config{Logger: gormlogger.Discard}}
	}
	db, err := gorm.Open(sqlite.Open(path), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// seedHubSchema creates the entity tables every hub database already has
// before this migration runs.
func seedHubSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, stmt := range []string{
		"CREATE TABLE user (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(255) NOT NULL)",
		"CREATE TABLE organization (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(255) NOT NULL)",
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

// seedLegacySchema is seedHubSchema plus the pre-split storage quota
// columns the backfill migrates away from.
func seedLegacySchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, stmt := range []string{
		"CREATE TABLE user (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(255) NOT NULL, storage_quota_bytes INTEGER, storage_used_bytes INTEGER DEFAULT 0)",
		"CREATE TABLE organization (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(255) NOT NULL, storage_quota_bytes INTEGER, storage_used_bytes INTEGER DEFAULT 0)",
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

func newSQLiteRunner(t *testing.T, db *gorm.DB) (*Runner, *observer.ObservedLogs) {
	t.Helper()
	rep, logs := newTestReporter(t)
	runner, err := NewRunner(db, DatabaseTypeSQLite, rep)
	require.NoError(t, err)
	return runner, logs
}

func TestRunSQLite_EndToEnd(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)
	runner, logs := newSQLiteRunner(t, db)

	require.NoError(t, runner.Run(context.Background()))

	for _, table := range []string{"user", "organization"} {
		cols, err := existingColumns(db, table)
		require.NoError(t, err)
		for _, name := range []string{"private_quota_bytes", "public_quota_bytes", "private_used_bytes", "public_used_bytes"} {
			assert.Contains(t, cols, name, "missing %s.%s", table, name)
		}
	}

	cols, err := existingColumns(db, "sshkey")
	require.NoError(t, err)
	for _, name := range []string{"id", "user_id", "key_type", "public_key", "fingerprint", "title", "last_used", "created_at"} {
		assert.Contains(t, cols, name)
	}

	var indexes []string
	require.NoError(t, db.Raw(
		"SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'sshkey' AND name LIKE 'sshkey_%'",
	).Scan(&indexes).Error)
	assert.ElementsMatch(t, []string{"sshkey_user_id", "sshkey_fingerprint", "sshkey_user_fingerprint"}, indexes)

	assert.Empty(t, warnMessages(logs))
	assert.NotZero(t, successCount(logs))
}

func TestRunSQLite_Idempotent(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)

	runner, _ := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))

	rerun, logs := newSQLiteRunner(t, db)
	require.NoError(t, rerun.Run(context.Background()))

	// All eight columns pre-exist on the second pass.
	warnings := warnMessages(logs)
	var skips int
	for _, msg := range warnings {
		if strings.Contains(msg, "already exists, skipping") {
			skips++
		}
	}
	assert.Equal(t, 8, skips)
}

func TestRunSQLite_Defaults(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)
	runner, _ := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))

	require.NoError(t, db.Exec("INSERT INTO user (name) VALUES ('alice')").Error)

	var privateQuota, publicQuota, privateUsed, publicUsed sql.NullInt64
	row := db.Raw(
		"SELECT private_quota_bytes, public_quota_bytes, private_used_bytes, public_used_bytes FROM user WHERE name = 'alice'",
	).Row()
	require.NoError(t, row.Scan(&privateQuota, &publicQuota, &privateUsed, &publicUsed))

	assert.False(t, privateQuota.Valid, "quota limits default to NULL")
	assert.False(t, publicQuota.Valid)
	require.True(t, privateUsed.Valid)
	assert.Zero(t, privateUsed.Int64)
	require.True(t, publicUsed.Valid)
	assert.Zero(t, publicUsed.Int64)
}

func TestRunSQLite_MissingEntityTable(t *testing.T) {
	db := openSQLite(t)
	runner, _ := newSQLiteRunner(t, db)

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inspect table user")
}

func TestSSHKeyUniqueness(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)
	runner, _ := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))

	insertKey := func(userID int, fingerprint string) error {
		return db.Exec(
			"INSERT INTO sshkey (user_id, key_type, public_key, fingerprint, title) VALUES (?, ?, ?, ?, ?)",
			userID, "ssh-ed25519", "AAAAC3NzaC1lZDI1NTE5", fingerprint, "laptop",
		).Error
	}

	require.NoError(t, insertKey(1, "SHA256:abc"))

	err := insertKey(1, "SHA256:abc")
	require.Error(t, err, "same owner may not register a fingerprint twice")
	assert.Contains(t, strings.ToUpper(err.Error()), "UNIQUE")

	err = insertKey(2, "SHA256:abc")
	require.Error(t, err, "fingerprints are globally unique across owners")

	require.NoError(t, insertKey(1, "SHA256:def"))

	var createdAt sql.NullString
	row := db.Raw("SELECT created_at FROM sshkey WHERE fingerprint = 'SHA256:abc'").Row()
	require.NoError(t, row.Scan(&createdAt))
	assert.True(t, createdAt.Valid, "created_at fills from its default")
}

func TestRunSQLite_BackfillLegacyQuota(t *testing.T) {
	db := openSQLite(t)
	seedLegacySchema(t, db)

	require.NoError(t, db.Exec(
		"INSERT INTO user (name, storage_quota_bytes, storage_used_bytes) VALUES ('alice', 100, 50)").Error)
	require.NoError(t, db.Exec(
		"INSERT INTO user (name, storage_quota_bytes, storage_used_bytes) VALUES ('bob', NULL, NULL)").Error)

	runner, logs := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, warnMessages(logs))

	var quota, used sql.NullInt64
	row := db.Raw("SELECT private_quota_bytes, private_used_bytes FROM user WHERE name = 'alice'").Row()
	require.NoError(t, row.Scan(&quota, &used))
	require.True(t, quota.Valid)
	assert.Equal(t, int64(100), quota.Int64)
	require.True(t, used.Valid)
	assert.Equal(t, int64(50), used.Int64)

	// Rows with no legacy values keep the fresh-column defaults.
	row = db.Raw("SELECT private_quota_bytes FROM user WHERE name = 'bob'").Row()
	require.NoError(t, row.Scan(&quota))
	assert.False(t, quota.Valid)
}

func TestRunSQLite_BackfillCopiesOnce(t *testing.T) {
	db := openSQLite(t)
	seedLegacySchema(t, db)
	require.NoError(t, db.Exec(
		"INSERT INTO user (name, storage_quota_bytes, storage_used_bytes) VALUES ('alice', 100, 50)").Error)

	runner, _ := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))

	// Legacy values changing after the copy must not propagate again.
	require.NoError(t, db.Exec("UPDATE user SET storage_quota_bytes = 999 WHERE name = 'alice'").Error)

	rerun, _ := newSQLiteRunner(t, db)
	require.NoError(t, rerun.Run(context.Background()))

	var quota sql.NullInt64
	row := db.Raw("SELECT private_quota_bytes FROM user WHERE name = 'alice'").Row()
	require.NoError(t, row.Scan(&quota))
	require.True(t, quota.Valid)
	assert.Equal(t, int64(100), quota.Int64)
}

// A fresh schema has no legacy columns; the skip is ordinary progress,
// not a warning.
func TestRunSQLite_BackfillSkippedWithoutLegacyColumns(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)

	runner, logs := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))

	assert.Empty(t, warnMessages(logs))

	var skips int
	for _, msg := range infoMessages(logs) {
		if strings.Contains(msg, "skipping backfill") {
			skips++
		}
	}
	assert.Equal(t, 2, skips)
}

func TestVerifySQLite(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)
	runner, _ := newSQLiteRunner(t, db)

	// Before migrating, verification must fail.
	require.Error(t, runner.Verify(context.Background()))

	require.NoError(t, runner.Run(context.Background()))
	require.NoError(t, runner.Verify(context.Background()))
}

func TestExistingColumns(t *testing.T) {
	db := openSQLite(t)
	seedHubSchema(t, db)

	cols, err := existingColumns(db, "user")
	require.NoError(t, err)
	assert.Contains(t, cols, "id")
	assert.Contains(t, cols, "name")
	assert.NotContains(t, cols, "private_quota_bytes")

	_, err = existingColumns(db, "nosuchtable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does it exist")
}

// sqlRecorder captures every statement the connection executes, in
// order, via the gorm logger hook.
type sqlRecorder struct {
	mu    sync.Mutex
	stmts []string
}

func (r *sqlRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{})    {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	stmt, _ := fc()
	r.mu.Lock()
	r.stmts = append(r.stmts, stmt)
	r.mu.Unlock()
}

func (r *sqlRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

// Every ALTER TABLE on SQLite must be preceded by a catalog read of the
// same table; the dialect has no IF NOT EXISTS guard for columns.
func TestSQLiteIntrospectionPrecedesDDL(t *testing.T) {
	rec := &sqlRecorder{}
	db := openSQLite(t, &gorm.Config{Logger: rec})
	seedHubSchema(t, db)
	runner, _ := newSQLiteRunner(t, db)
	require.NoError(t, runner.Run(context.Background()))

	stmts := rec.all()
	var alters int
	for i, stmt := range stmts {
		if !strings.HasPrefix(stmt, "ALTER TABLE") {
			continue
		}
		alters++
		require.Greater(t, i, 0)
		assert.Contains(t, stmts[i-1], "pragma_table_info",
			"expected a catalog read immediately before %q", stmt)
	}
	assert.Equal(t, 8, alters)
}
