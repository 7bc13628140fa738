package webimg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()

	assert.Equal(t, 7*24*time.Hour, cfg.MaxDiskAge)
	assert.True(t, cfg.DecompressImages)
	assert.True(t, cfg.CacheInMemory)
	assert.False(t, cfg.DisableCloudBackup)
	assert.Zero(t, cfg.MaxMemoryCost)
	assert.Zero(t, cfg.MaxDiskSize)
}

func TestCacheConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CacheConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg:  DefaultCacheConfig(),
		},
		{
			name:    "negative memory cost",
			cfg:     CacheConfig{MaxMemoryCost: -1},
			wantErr: "max memory cost",
		},
		{
			name:    "negative memory count",
			cfg:     CacheConfig{MaxMemoryCount: -1},
			wantErr: "max memory count",
		},
		{
			name:    "negative disk size",
			cfg:     CacheConfig{MaxDiskSize: -1},
			wantErr: "max disk size",
		},
		{
			name:    "negative disk age",
			cfg:     CacheConfig{MaxDiskAge: -time.Hour},
			wantErr: "max disk age",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCacheConfig_ValidateDefaultsDiskAge(t *testing.T) {
	cfg := CacheConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxDiskAge, cfg.MaxDiskAge)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCacheConfig(t *testing.T) {
	path := writeConfig(t, `
max_memory_cost: 1048576
max_memory_count: 50
max_disk_age: 3600
max_disk_size: 10485760
decompress_images: false
cache_in_memory: false
disable_cloud_backup: true
additional_read_only_paths:
  - /srv/preseeded
`)

	cfg, err := LoadCacheConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 1048576, cfg.MaxMemoryCost)
	assert.Equal(t, 50, cfg.MaxMemoryCount)
	assert.Equal(t, time.Hour, cfg.MaxDiskAge)
	assert.Equal(t, int64(10485760), cfg.MaxDiskSize)
	assert.False(t, cfg.DecompressImages)
	assert.False(t, cfg.CacheInMemory)
	assert.True(t, cfg.DisableCloudBackup)
	assert.Equal(t, []string{"/srv/preseeded"}, cfg.AdditionalReadOnlyPaths)
}

func TestLoadCacheConfig_AbsentKeysKeepDefaults(t *testing.T) {
	path := writeConfig(t, "max_disk_size: 512\n")

	cfg, err := LoadCacheConfig(path)
	require.NoError(t, err)

	// Booleans absent from the file stay enabled; zero disk age falls back
	// to the seven-day default.
	assert.True(t, cfg.DecompressImages)
	assert.True(t, cfg.CacheInMemory)
	assert.Equal(t, DefaultMaxDiskAge, cfg.MaxDiskAge)
	assert.Equal(t, int64(512), cfg.MaxDiskSize)
}

func TestLoadCacheConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCacheConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "read cache config")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "max_disk_size: [not a number\n")
		_, err := LoadCacheConfig(path)
		assert.ErrorContains(t, err, "parse cache config")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "max_memory_cost: -5\n")
		_, err := LoadCacheConfig(path)
		assert.ErrorContains(t, err, "invalid cache config")
	})
}
