package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, clientOptions(storageConfig.StorageConfig{}))
	assert.Len(t, clientOptions(storageConfig.StorageConfig{CredentialsFile: "key.json"}), 1)
	assert.Len(t, clientOptions(storageConfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}

func TestGCSProvider_RejectsOtherTypes(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.Storage = map[string]interface{}{
		"local": map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
	}
	p := NewGCSProvider(cfg)

	_, err := p.GetConnection("local")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")
	_, err = p.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, ProviderType, p.Type())
	assert.NoError(t, p.CloseAll())
}

func TestGCSAdapter_EmulatorConnection(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.Storage = map[string]interface{}{
		"emulator": map[string]interface{}{
			"type":        "gcs",
			"bucket_name": "customers",
			"endpoint":    "http://localhost:4443/storage/v1/",
		},
	}
	p := NewGCSProvider(cfg)

	// creating the client does not contact the endpoint
	conn, err := p.GetConnection("emulator")
	require.NoError(t, err)
	assert.Equal(t, "gcs", conn.Type())
	assert.Equal(t, "emulator", conn.Name())

	a := conn.(*gcsAdapter)
	_, err = a.bucket("")
	assert.NoError(t, err)
	assert.NoError(t, p.CloseAll())
}
