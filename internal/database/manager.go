// Package database manages the single shared GORM handle a migration
// run works against.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/KohakuBlueleaf/kohaku-hub-migrate/internal/migration"
)

// Manager owns the connection for the duration of a run. The handle is
// opened on first use and reused afterwards; the migrators share it and
// never close it, the lifecycle stays here.
type Manager struct {
	backend migration.DatabaseType
	dsn     string
	logger  *zap.Logger

	mu     sync.Mutex
	db     *gorm.DB
	sqlDB  *sql.DB
	closed bool
}

// NewManager creates a manager for the given backend and DSN. Nothing is
// opened until Get is called.
func NewManager(backend migration.DatabaseType, dsn string, logger *zap.Logger) *Manager {
	return &Manager{
		backend: backend,
		dsn:     dsn,
		logger:  logger.With(zap.String("component", "database")),
	}
}

// Get returns the shared handle, opening it on the first call and
// reusing it afterwards.
func (m *Manager) Get(ctx context.Context) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("database manager is closed")
	}
	if m.db != nil {
		return m.db, nil
	}

	var dialector gorm.Dialector
	switch m.backend {
	case migration.DatabaseTypePostgres:
		dialector = postgres.Open(m.dsn)
	case migration.DatabaseTypeSQLite:
		dialector = sqlite.Open(sqlitePath(m.dsn))
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// DDL statements must share one logical session; pin the pool to a
	// single connection for the whole run.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m.db = db
	m.sqlDB = sqlDB
	m.logger.Info("database connected", zap.String("backend", string(m.backend)))
	return m.db, nil
}

// Stats returns connection statistics for the open handle.
func (m *Manager) Stats() (sql.DBStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sqlDB == nil {
		return sql.DBStats{}, fmt.Errorf("database not open")
	}
	return m.sqlDB.Stats(), nil
}

// Close closes the connection. Safe to call when nothing was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.sqlDB == nil {
		return nil
	}
	m.logger.Info("closing database connection")
	return m.sqlDB.Close()
}

// sqlitePath strips the URL scheme the hub's configuration historically
// uses for its sqlite default (sqlite:///./hub.db).
func sqlitePath(dsn string) string {
	if rest, ok := strings.CutPrefix(dsn, "sqlite:///"); ok {
		return rest
	}
	return strings.TrimPrefix(dsn, "sqlite://")
}
