package webimg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxDiskAge is how long a disk entry survives before the janitor
// sweep removes it: seven days.
const DefaultMaxDiskAge = 7 * 24 * time.Hour

// CacheConfig holds the policy knobs of a Cache. Use DefaultCacheConfig as
// the starting point; a zero MaxDiskAge is replaced by the default during
// validation.
type CacheConfig struct {
	// MaxMemoryCost caps the aggregate Cost of in-memory entries.
	// Zero means unlimited.
	MaxMemoryCost int

	// MaxMemoryCount caps the number of in-memory entries.
	// Zero means unlimited.
	MaxMemoryCount int

	// MaxDiskAge is the maximum age of a disk entry before the janitor
	// removes it.
	MaxDiskAge time.Duration

	// MaxDiskSize caps the aggregate size of the disk tier in bytes.
	// Zero means unlimited.
	MaxDiskSize int64

	// DecompressImages eagerly materializes rasters on disk hits. Costs
	// memory, saves per-draw decode time. Enabled by default.
	DecompressImages bool

	// CacheInMemory enables the memory tier. Enabled by default.
	CacheInMemory bool

	// DisableCloudBackup marks disk entries as excluded from any
	// cloud-backup mechanism the platform offers.
	DisableCloudBackup bool

	// AdditionalReadOnlyPaths are consulted, in order, on a disk miss before
	// declaring a full miss. They are never written to.
	AdditionalReadOnlyPaths []string
}

// DefaultCacheConfig returns the configuration a Cache uses when none is
// supplied.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxDiskAge:       DefaultMaxDiskAge,
		DecompressImages: true,
		CacheInMemory:    true,
	}
}

// Validate checks the configuration and applies defaults to unset fields.
func (c *CacheConfig) Validate() error {
	if c.MaxMemoryCost < 0 {
		return fmt.Errorf("max memory cost cannot be negative")
	}
	if c.MaxMemoryCount < 0 {
		return fmt.Errorf("max memory count cannot be negative")
	}
	if c.MaxDiskSize < 0 {
		return fmt.Errorf("max disk size cannot be negative")
	}
	if c.MaxDiskAge < 0 {
		return fmt.Errorf("max disk age cannot be negative")
	}
	if c.MaxDiskAge == 0 {
		c.MaxDiskAge = DefaultMaxDiskAge
	}
	return nil
}

// cacheConfigFile is the YAML shape of CacheConfig. Durations are plain
// seconds so configuration files stay tooling-friendly.
type cacheConfigFile struct {
	MaxMemoryCost           int      `yaml:"max_memory_cost"`
	MaxMemoryCount          int      `yaml:"max_memory_count"`
	MaxDiskAgeSeconds       int64    `yaml:"max_disk_age"`
	MaxDiskSize             int64    `yaml:"max_disk_size"`
	DecompressImages        *bool    `yaml:"decompress_images"`
	CacheInMemory           *bool    `yaml:"cache_in_memory"`
	DisableCloudBackup      bool     `yaml:"disable_cloud_backup"`
	AdditionalReadOnlyPaths []string `yaml:"additional_read_only_paths"`
}

// LoadCacheConfig reads a YAML cache configuration. Absent keys keep their
// defaults; boolean policy knobs default to enabled.
func LoadCacheConfig(path string) (CacheConfig, error) {
	cfg := DefaultCacheConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read cache config: %w", err)
	}

	var file cacheConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse cache config: %w", err)
	}

	cfg.MaxMemoryCost = file.MaxMemoryCost
	cfg.MaxMemoryCount = file.MaxMemoryCount
	cfg.MaxDiskSize = file.MaxDiskSize
	cfg.DisableCloudBackup = file.DisableCloudBackup
	cfg.AdditionalReadOnlyPaths = file.AdditionalReadOnlyPaths
	if file.MaxDiskAgeSeconds > 0 {
		cfg.MaxDiskAge = time.Duration(file.MaxDiskAgeSeconds) * time.Second
	}
	if file.DecompressImages != nil {
		cfg.DecompressImages = *file.DecompressImages
	}
	if file.CacheInMemory != nil {
		cfg.CacheInMemory = *file.CacheInMemory
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid cache config: %w", err)
	}
	return cfg, nil
}
