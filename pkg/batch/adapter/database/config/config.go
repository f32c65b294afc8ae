// Package config holds the typed form of a database.<name> configuration section.
package config

import (
	"fmt"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/configbinder"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type"` // "sqlite", "postgres" or "mysql"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // database name, or the file path for sqlite
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema,omitempty"` // postgres search_path
	Sslmode  string `yaml:"sslmode"`
	// Params are appended to the DSN as driver-specific options.
	Params map[string]string `yaml:"params"`
	// Migrate runs the embedded schema migrations before the job starts.
	Migrate bool `yaml:"migrate"`
	// LogLevel is the gorm logger level: SILENT, ERROR, WARN or INFO.
	LogLevel string     `yaml:"log_level"`
	Pool     PoolConfig `yaml:"pool"`
}

// Load decodes the section called name from sections.
func Load(sections map[string]interface{}, name string) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	found, err := configbinder.BindSection(sections, name, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("database '%s': %w", name, err)
	}
	if !found {
		return cfg, fmt.Errorf("database configuration '%s' not found", name)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("database '%s': type is required", name)
	}
	return cfg, nil
}
