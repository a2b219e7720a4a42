// Package config handles configuration loading and validation for cloudrift.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cloudrift/cloudrift/pkg/bytesize"
)

// StorageConfig holds configuration for the blob store.
type StorageConfig struct {
	UploadDir   string `yaml:"upload_dir" validate:"required"`
	TempDir     string `yaml:"temp_dir"`                     // Defaults to <upload_dir>/tmp
	BaseURL     string `yaml:"base_url" validate:"required"` // Public prefix for thumbnail and avatar URLs
	MergeBuffer string `yaml:"merge_buffer"`                 // Size string, e.g. "64KB"
}

// CatalogConfig holds configuration for the metadata database.
type CatalogConfig struct {
	Path string `yaml:"path"` // Defaults to <upload_dir>/cloudrift.db
}

// QuotaConfig holds configuration for storage accounting.
type QuotaConfig struct {
	DefaultTotal string `yaml:"default_total"` // Allowance for new users, e.g. "10GB"
}

// ThumbnailConfig holds configuration for preview generation.
type ThumbnailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FFmpeg   string `yaml:"ffmpeg"`   // Path to the ffmpeg binary
	Pdftoppm string `yaml:"pdftoppm"` // Path to the pdftoppm binary
	PDFDPI   int    `yaml:"pdf_dpi"`
}

// PoolConfig holds configuration for the background task pool.
type PoolConfig struct {
	Workers int `yaml:"workers" validate:"min=0,max=256"`
	Queue   int `yaml:"queue" validate:"min=0,max=65536"`
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the full cloudrift configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Quota     QuotaConfig     `yaml:"quota"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Pool      PoolConfig      `yaml:"pool"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
}

// Default values applied by Load when the file leaves them unset.
const (
	DefaultMergeBuffer = 64 * 1024
	DefaultQuotaTotal  = 10 << 30
	DefaultThumbWidth  = 400
	DefaultThumbHeight = 400
	DefaultPDFDPI      = 150
	DefaultPoolWorkers = 4
	DefaultPoolQueue   = 64
	DefaultMetricsAddr = ":9090"
	DefaultCatalogName = "cloudrift.db"
)

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.MergeBufferBytes(); err != nil {
		return nil, fmt.Errorf("storage.merge_buffer: %w", err)
	}
	if _, err := cfg.DefaultQuotaBytes(); err != nil {
		return nil, fmt.Errorf("quota.default_total: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Storage.UploadDir = expandHome(c.Storage.UploadDir)
	if c.Storage.TempDir == "" && c.Storage.UploadDir != "" {
		c.Storage.TempDir = filepath.Join(c.Storage.UploadDir, "tmp")
	}
	c.Storage.TempDir = expandHome(c.Storage.TempDir)
	c.Storage.BaseURL = strings.TrimRight(c.Storage.BaseURL, "/")
	if c.Storage.MergeBuffer == "" {
		c.Storage.MergeBuffer = bytesize.Format(DefaultMergeBuffer)
	}

	c.Catalog.Path = expandHome(c.Catalog.Path)
	if c.Catalog.Path == "" && c.Storage.UploadDir != "" {
		c.Catalog.Path = filepath.Join(c.Storage.UploadDir, DefaultCatalogName)
	}

	if c.Quota.DefaultTotal == "" {
		c.Quota.DefaultTotal = bytesize.Format(DefaultQuotaTotal)
	}

	if c.Thumbnail.Width <= 0 {
		c.Thumbnail.Width = DefaultThumbWidth
	}
	if c.Thumbnail.Height <= 0 {
		c.Thumbnail.Height = DefaultThumbHeight
	}
	if c.Thumbnail.FFmpeg == "" {
		c.Thumbnail.FFmpeg = "ffmpeg"
	}
	if c.Thumbnail.Pdftoppm == "" {
		c.Thumbnail.Pdftoppm = "pdftoppm"
	}
	if c.Thumbnail.PDFDPI <= 0 {
		c.Thumbnail.PDFDPI = DefaultPDFDPI
	}

	if c.Pool.Workers <= 0 {
		c.Pool.Workers = DefaultPoolWorkers
	}
	if c.Pool.Queue <= 0 {
		c.Pool.Queue = DefaultPoolQueue
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// MergeBufferBytes parses the configured merge buffer size.
func (c *Config) MergeBufferBytes() (int, error) {
	n, err := bytesize.Parse(c.Storage.MergeBuffer)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DefaultQuotaBytes parses the configured per-user allowance.
func (c *Config) DefaultQuotaBytes() (int64, error) {
	return bytesize.Parse(c.Quota.DefaultTotal)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
