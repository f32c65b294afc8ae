package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/local"
	coreConfig "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func TestConnectionResolver(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.Storage = map[string]interface{}{
		"local":   map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
		"unknown": map[string]interface{}{"type": "s3"},
	}
	r := storage.NewConnectionResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
		Config:    cfg,
	})

	conn, err := r.ResolveStorageConnection(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, local.ProviderType, conn.Type())

	_, err = r.ResolveStorageConnection(context.Background(), "unknown")
	assert.ErrorContains(t, err, "no storage provider found for type 's3'")

	_, err = r.ResolveStorageConnection(context.Background(), "missing")
	assert.Error(t, err)
	r.CloseAll()
}
