// Package config loads the migration tool's configuration.
// Priority: defaults, then YAML file, then environment variables.
package config

import "fmt"

// Config is the complete configuration for the migration tool.
type Config struct {
	// App holds the application-level settings.
	App AppConfig `yaml:"app" env:""`

	// Log holds the logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// AppConfig selects the database backend and connection.
type AppConfig struct {
	// Database backend: postgres or sqlite.
	DBBackend string `yaml:"db_backend" env:"DB_BACKEND"`
	// Connection string. A PostgreSQL DSN for the postgres backend; a
	// file path (optionally prefixed sqlite:///) for the sqlite backend.
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are the log sinks; defaults to stderr.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			DBBackend:   "sqlite",
			DatabaseURL: "sqlite:///./hub.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	switch c.App.DBBackend {
	case "postgres", "postgresql", "pg", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported db_backend: %s", c.App.DBBackend)
	}
	if c.App.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	return nil
}
