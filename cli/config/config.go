package config

import (
	"fmt"
	"time"
)

// Default tuning values applied by ApplyDefaults.
const (
	DefaultCatalogURL      = "https://formulae.brew.sh/api/formula.json"
	DefaultSizeThresholdGB = 20
	DefaultRetries         = 3
)

// DefaultPlatforms is the platform allow list used when the config file
// names none.
var DefaultPlatforms = []string{"arm64_sonoma", "arm64_ventura", "monterey"}

// Config represents a bottlesync.yaml configuration file. Environment
// variables in the file are expanded before parsing, so secrets can be
// referenced as ${VAR} or ${VAR:-default}.
type Config struct {
	Catalog  CatalogConfig   `yaml:"catalog"`
	Storage  StorageConfig   `yaml:"storage"`
	Manifest ManifestConfig  `yaml:"manifest"`
	Sync     SyncConfig      `yaml:"sync"`
	Journal  JournalConfig   `yaml:"journal"`
	Adapters []AdapterConfig `yaml:"adapters"`
}

// CatalogConfig points at the upstream formula index.
type CatalogConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// StorageConfig selects the bottle store backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // "fs" or "s3"
	Path        string `yaml:"path"`    // fs root directory
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// ManifestConfig selects where the sync manifest lives. The manifest may
// use a different backend than the bottles themselves.
type ManifestConfig struct {
	Backend             string     `yaml:"backend"` // "fs" or "s3"; empty follows storage.backend
	Path                string     `yaml:"path"`    // fs manifest file path
	Bucket              string     `yaml:"bucket"`
	Key                 string     `yaml:"key"`
	RebuildOnCorruption bool       `yaml:"rebuild_on_corruption"`
	Seed                SeedConfig `yaml:"seed"`
}

// SeedConfig locates an external manifest used to bootstrap a first run.
type SeedConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
}

// SyncConfig tunes planning and execution.
type SyncConfig struct {
	Platforms         []string     `yaml:"platforms"`
	SizeThresholdGB   int          `yaml:"size_threshold_gb"`
	Retries           *int         `yaml:"retries,omitempty"`
	RetryChecksumOnce *bool        `yaml:"retry_checksum_once,omitempty"`
	ProgressInterval  Duration     `yaml:"progress_interval,omitempty"`
	Lightweight       LimitsConfig `yaml:"lightweight"`
	HeavyDuty         LimitsConfig `yaml:"heavy_duty"`
}

// LimitsConfig overrides per-path execution limits. Zero values keep the
// built-in limits for that path.
type LimitsConfig struct {
	MaxConcurrent   int      `yaml:"max_concurrent"`
	CheckpointEvery int      `yaml:"checkpoint_every"`
	MaxRunTime      Duration `yaml:"max_run_time,omitempty"`
}

// JournalConfig selects where per-run journals are written. An empty dir
// disables journaling.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// AdapterConfig declares one notification adapter.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // "webhook" or "redis"
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ApplyDefaults fills unset fields with their built-in defaults.
func (c *Config) ApplyDefaults() {
	if c.Catalog.URL == "" {
		c.Catalog.URL = DefaultCatalogURL
	}
	if len(c.Sync.Platforms) == 0 {
		c.Sync.Platforms = append([]string(nil), DefaultPlatforms...)
	}
	if c.Sync.SizeThresholdGB == 0 {
		c.Sync.SizeThresholdGB = DefaultSizeThresholdGB
	}
	if c.Sync.Retries == nil {
		r := DefaultRetries
		c.Sync.Retries = &r
	}
	if c.Sync.RetryChecksumOnce == nil {
		v := true
		c.Sync.RetryChecksumOnce = &v
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "fs"
	}
	if c.Manifest.Backend == "" {
		c.Manifest.Backend = c.Storage.Backend
	}
}

// Validate rejects configurations that cannot be wired into a runnable
// orchestrator. Call after ApplyDefaults.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: fs backend requires path")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage: s3 backend requires bucket")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q (must be fs or s3)", c.Storage.Backend)
	}

	switch c.Manifest.Backend {
	case "fs":
		if c.Manifest.Path == "" {
			return fmt.Errorf("manifest: fs backend requires path")
		}
	case "s3":
		if c.Manifest.Bucket == "" || c.Manifest.Key == "" {
			return fmt.Errorf("manifest: s3 backend requires bucket and key")
		}
	default:
		return fmt.Errorf("manifest: unknown backend %q (must be fs or s3)", c.Manifest.Backend)
	}

	if c.Sync.SizeThresholdGB < 0 {
		return fmt.Errorf("sync: size_threshold_gb must not be negative")
	}
	if c.Sync.Retries != nil && *c.Sync.Retries < 0 {
		return fmt.Errorf("sync: retries must not be negative")
	}

	seed := c.Manifest.Seed
	if seed.URL != "" && (seed.Bucket != "" || seed.Key != "") {
		return fmt.Errorf("manifest: seed url and seed bucket/key are mutually exclusive")
	}
	if (seed.Bucket == "") != (seed.Key == "") {
		return fmt.Errorf("manifest: seed bucket and key must be set together")
	}

	for i, a := range c.Adapters {
		switch a.Type {
		case "webhook", "redis":
		default:
			return fmt.Errorf("adapters[%d]: unknown type %q (must be webhook or redis)", i, a.Type)
		}
		if a.URL == "" {
			return fmt.Errorf("adapters[%d]: url is required", i)
		}
		if a.Retries != nil && *a.Retries < 0 {
			return fmt.Errorf("adapters[%d]: retries must not be negative", i)
		}
	}

	return nil
}

// SizeThresholdBytes converts the configured threshold to bytes.
func (c *Config) SizeThresholdBytes() int64 {
	return int64(c.Sync.SizeThresholdGB) << 30
}
