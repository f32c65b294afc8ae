package resources

import (
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func TestApplicationConfigLoads(t *testing.T) {
	cfg, err := config.LoadConfig("", ApplicationConfig())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "myjob", cfg.Batch.JobName)
	assert.Equal(t, "customerStep", cfg.Batch.StepName)
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
	assert.Equal(t, config.DefaultFieldNames, cfg.Batch.Source.FieldNames)
	// The shipped job passes records through unchanged.
	assert.False(t, cfg.Batch.Processor.TrimSpace)
	assert.False(t, cfg.Batch.Processor.RequireCountry)
	assert.Contains(t, cfg.Database, "default")
	assert.Contains(t, cfg.Storage, "local")

	pg, ok := cfg.Database["postgres"].(map[string]interface{})
	require.True(t, ok)
	if _, set := os.LookupEnv("PGPORT"); !set {
		assert.Equal(t, 5432, pg["port"])
	}
}

func TestMigrationsCoverEveryDialect(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres", "mysql"} {
		entries, err := fs.ReadDir(Migrations(), dialect)
		require.NoError(t, err, dialect)
		assert.Len(t, entries, 2, dialect)
	}
}
