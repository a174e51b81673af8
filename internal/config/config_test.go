package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := Load()

	assert.Equal(t, 0.75, cfg.SimilarityThreshold)
	assert.Equal(t, 0.60, cfg.DedupGuardThreshold)
	assert.Equal(t, 0.68, cfg.BufferSimThreshold)
	assert.Equal(t, 10*time.Second, cfg.BufferTTL)
	assert.Equal(t, 50, cfg.BufferCapacity)
	assert.Equal(t, "Desconhecido", cfg.UnknownLabel)
	assert.Equal(t, 3*time.Second, cfg.ReconnectBackoff)
	assert.Equal(t, 50*time.Millisecond, cfg.ReadRetryDelay)
	assert.Equal(t, 33*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, 10, cfg.CropPadding)
	assert.Equal(t, 20, cfg.MinCropSize)
	assert.Equal(t, 75, cfg.JPEGQuality)
	assert.Equal(t, filepath.Join(".", "cattle.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(".", "photos"), cfg.PhotosDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATA_DIR", "/data")
	t.Setenv("SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("BUFFER_TTL", "2s")
	t.Setenv("BUFFER_CAPACITY", "not-a-number")

	cfg := Load()

	assert.Equal(t, 0.8, cfg.SimilarityThreshold)
	assert.Equal(t, 2*time.Second, cfg.BufferTTL)
	assert.Equal(t, 50, cfg.BufferCapacity, "unparsable values fall back to defaults")
	assert.Equal(t, "/data/cattle.db", cfg.DBPath)
	assert.Equal(t, "/data/photos", cfg.PhotosDir)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "threshold above one", mutate: func(c *Config) { c.SimilarityThreshold = 1.5 }, wantErr: true},
		{name: "zero capacity", mutate: func(c *Config) { c.BufferCapacity = 0 }, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.BufferTTL = -time.Second }, wantErr: true},
		{name: "bad jpeg quality", mutate: func(c *Config) { c.JPEGQuality = 0 }, wantErr: true},
		{name: "unordered thresholds only warn", mutate: func(c *Config) {
			c.DedupGuardThreshold = 0.9
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadCameraSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cameras.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cameras:
  - id: curral-1
    name: Curral
    url: rtsp://10.0.0.5/stream
  - id: porteira
    url: "0"
    tenant_id: 7
    active: false
`), 0o644))

	seeds, err := LoadCameraSeeds(path, 1)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "Curral", seeds[0].Name)
	assert.Equal(t, int64(1), seeds[0].TenantID)
	assert.True(t, seeds[0].IsActive())

	assert.Equal(t, "porteira", seeds[1].Name)
	assert.Equal(t, int64(7), seeds[1].TenantID)
	assert.False(t, seeds[1].IsActive())
}

func TestLoadCameraSeedsRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cameras:
  - {id: a, url: "0"}
  - {id: a, url: "1"}
`), 0o644))

	_, err := LoadCameraSeeds(path, 1)
	assert.Error(t, err)
}

func TestLoadCameraSeedsEmptyPath(t *testing.T) {
	seeds, err := LoadCameraSeeds("", 1)
	require.NoError(t, err)
	assert.Nil(t, seeds)
}
