package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"mysql", "mysql", "", true},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy(DatabaseTypePostgres)
	assert.NoError(t, err)
	assert.Equal(t, DatabaseTypePostgres, s.Type())

	s, err = NewStrategy(DatabaseTypeSQLite)
	assert.NoError(t, err)
	assert.Equal(t, DatabaseTypeSQLite, s.Type())

	_, err = NewStrategy(DatabaseType("oracle"))
	assert.Error(t, err)
}
