// Package config holds the typed form of a storage.<name> configuration section.
package config

import (
	"fmt"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs"
	BucketName      string `yaml:"bucket_name"`      // default bucket when an operation passes ""
	CredentialsFile string `yaml:"credentials_file"` // service account key for gcs
	ProjectID       string `yaml:"project_id"`
	Endpoint        string `yaml:"endpoint"` // gcs endpoint override, e.g. an emulator
	BaseDir         string `yaml:"base_dir"` // root directory for local
}

// Load decodes the section called name from sections.
func Load(sections map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	found, err := configbinder.BindSection(sections, name, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("storage '%s': %w", name, err)
	}
	if !found {
		return cfg, fmt.Errorf("storage configuration for name '%s' not found", name)
	}
	return cfg, nil
}
