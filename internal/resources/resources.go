// Package resources embeds the application configuration and the schema migrations.
package resources

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

//go:embed application.yaml
var applicationYAML []byte

//go:embed all:migrations
var migrations embed.FS

// ApplicationConfig returns the embedded application.yaml.
func ApplicationConfig() config.EmbeddedConfig {
	return config.EmbeddedConfig(applicationYAML)
}

// Migrations returns the migration tree, one directory per database type
// (sqlite, postgres, mysql) at its root.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		// fs.Sub only fails on an invalid path
		panic(err)
	}
	return sub
}
