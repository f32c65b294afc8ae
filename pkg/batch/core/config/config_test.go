package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

const sampleYAML = `
batch:
  chunk_size: 25
  skip_policy: skip_and_continue
  source:
    delimiter: ";"
    object: ${TEST_INPUT_OBJECT}
    field_names: [id, email]
system:
  logging:
    level: DEBUG
database:
  default:
    type: sqlite
    database: ":memory:"
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
	assert.Equal(t, "myjob", cfg.Batch.JobName)
	assert.Equal(t, "customerStep", cfg.Batch.StepName)
	assert.Equal(t, ",", cfg.Batch.Source.Delimiter)
	assert.Equal(t, 1, cfg.Batch.Source.SkipHeaderLines)
	assert.Equal(t, DefaultFieldNames, cfg.Batch.Source.FieldNames)
	assert.Equal(t, SkipPolicyFailOnError, cfg.Batch.SkipPolicy)
	assert.NoError(t, cfg.Validate())

	cfg.Batch.Source.FieldNames[0] = "changed"
	assert.Equal(t, "id", DefaultFieldNames[0])
}

func TestLoadConfig_YAMLAndPlaceholders(t *testing.T) {
	t.Setenv("TEST_INPUT_OBJECT", "in/customers_2024.csv")

	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Batch.ChunkSize)
	assert.Equal(t, ";", cfg.Batch.Source.Delimiter)
	assert.Equal(t, "in/customers_2024.csv", cfg.Batch.Source.Object)
	assert.Equal(t, []string{"id", "email"}, cfg.Batch.Source.FieldNames)
	assert.Equal(t, "DEBUG", cfg.System.Logging.Level)
	// untouched defaults survive
	assert.Equal(t, "myjob", cfg.Batch.JobName)
	assert.Equal(t, 1, cfg.Batch.Source.SkipHeaderLines)

	section, ok := cfg.Database["default"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sqlite", section["type"])
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BATCH_CHUNK_SIZE", "3")
	t.Setenv("BATCH_SOURCE_SKIP_HEADER_LINES", "0")
	t.Setenv("BATCH_SOURCE_FIELD_NAMES", "id, firstName ,lastName")
	t.Setenv("BATCH_PROCESSOR_REQUIRE_COUNTRY", "true")
	t.Setenv("DATABASE_DEFAULT_HOST", "db.internal")
	t.Setenv("STORAGE_LANDING_TYPE", "gcs")

	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Batch.ChunkSize)
	assert.Equal(t, 0, cfg.Batch.Source.SkipHeaderLines)
	assert.Equal(t, []string{"id", "firstName", "lastName"}, cfg.Batch.Source.FieldNames)
	assert.True(t, cfg.Batch.Processor.RequireCountry)

	db := cfg.Database["default"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, "sqlite", db["type"])
	assert.Equal(t, "gcs", cfg.Storage["landing"].(map[string]interface{})["type"])
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BATCH_JOB_NAME=fromdotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BATCH_JOB_NAME") })

	cfg, err := LoadConfig(envFile, EmbeddedConfig(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "fromdotenv", cfg.Batch.JobName)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("batch: [unterminated"))
	require.Error(t, err)
	var be *exception.BatchError
	assert.ErrorAs(t, err, &be)
}

func TestNewConfigProvider_RejectsNonPositiveChunkSize(t *testing.T) {
	_, err := NewConfigProvider(ConfigParams{EmbeddedConfig: EmbeddedConfig("batch:\n  chunk_size: -1\n")})
	require.Error(t, err)
	assert.True(t, exception.IsConfigError(err))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero chunk", func(c *Config) { c.Batch.ChunkSize = 0 }, "batch.chunk_size"},
		{"bad policy", func(c *Config) { c.Batch.SkipPolicy = "RETRY" }, "batch.skip_policy"},
		{"negative limit", func(c *Config) { c.Batch.SkipLimit = -1 }, "batch.skip_limit"},
		{"long delimiter", func(c *Config) { c.Batch.Source.Delimiter = "||" }, "batch.source.delimiter"},
		{"no fields", func(c *Config) { c.Batch.Source.FieldNames = nil }, "batch.source.field_names"},
		{"negative retry", func(c *Config) { c.Batch.WriteRetry.MaxAttempts = -2 }, "batch.write_retry.max_attempts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			var ce *exception.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestParseSkipPolicy(t *testing.T) {
	p, err := ParseSkipPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipPolicyFailOnError, p)

	p, err = ParseSkipPolicy(" skip_and_continue ")
	require.NoError(t, err)
	assert.Equal(t, SkipPolicySkipAndContinue, p)
}

func TestLoadConfig_EnvironmentOverridesNestedBlocks(t *testing.T) {
	t.Setenv("DATABASE_DEFAULT_POOL_MAX_OPEN_CONNS", "4")
	t.Setenv("DATABASE_MYSQL_PARAMS_PARSETIME", "false")
	t.Setenv("DATABASE_MYSQL_PARAMS_LOC", "UTC")

	yamlWithParams := sampleYAML + `  mysql:
    type: mysql
    params:
      parseTime: "true"
`
	cfg, err := LoadConfig("", EmbeddedConfig(yamlWithParams))
	require.NoError(t, err)

	def := cfg.Database["default"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"max_open_conns": "4"}, def["pool"])
	assert.NotContains(t, def, "pool_max_open_conns")
	dbCfg, err := dbconfig.Load(cfg.Database, "default")
	require.NoError(t, err)
	assert.Equal(t, 4, dbCfg.Pool.MaxOpenConns)

	mysql := cfg.Database["mysql"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"parseTime": "false", "loc": "UTC"}, mysql["params"])
}
