// Package config loads configuration from an optional TOML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fruitsalade/folderserve/internal/schedule"
)

// EnvConfigFile names the environment variable that points at a TOML file.
const EnvConfigFile = "FOLDERSERVE_CONFIG"

// Config holds all server configuration.
type Config struct {
	// Served tree
	Root string `toml:"root"`

	// Server
	ListenAddr  string `toml:"listen_addr"`
	MetricsAddr string `toml:"metrics_addr"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogOutput string `toml:"log_output"`

	// Index
	IndexEnabled      bool     `toml:"index_enabled"`
	IndexBackend      string   `toml:"index_backend"` // file, s3, postgres
	IndexPath         string   `toml:"index_path"`
	Retention         Duration `toml:"retention"`
	FullScanOnStartup bool     `toml:"full_scan_on_startup"`
	UpdateFullScan    bool     `toml:"update_full_scan"`
	CleanupEnabled    bool     `toml:"cleanup_enabled"`
	CleanupAt         string   `toml:"cleanup_at"`
	UpdateAt          string   `toml:"update_at"`

	// Listing
	DefaultPageSize  int `toml:"default_page_size"`
	ListingCacheSize int `toml:"listing_cache_size"`

	// S3 index store
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Bucket    string `toml:"s3_bucket"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3Region    string `toml:"s3_region"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`

	// Postgres index store
	DatabaseURL string `toml:"database_url"`

	// Extension to MIME overrides, e.g. ".webm" = "video/webm".
	MIMETypes map[string]string `toml:"mime_types"`
}

// Duration is a time.Duration that also accepts a day suffix ("180d").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML strings.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ParseDuration parses a Go duration or a whole number of days ("180d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ListenAddr:        "127.0.0.1:8000",
		MetricsAddr:       ":9090",
		LogLevel:          "info",
		LogFormat:         "json",
		IndexEnabled:      true,
		IndexBackend:      "file",
		IndexPath:         "file_index.json",
		Retention:         Duration{180 * 24 * time.Hour},
		FullScanOnStartup: true,
		CleanupEnabled:    true,
		CleanupAt:         "00:00",
		UpdateAt:          "00:05",
		DefaultPageSize:   20,
		ListingCacheSize:  256,
		S3Endpoint:        "http://localhost:9000",
		S3Bucket:          "folderserve",
		S3AccessKey:       "minioadmin",
		S3SecretKey:       "minioadmin",
		S3Region:          "us-east-1",
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or $FOLDERSERVE_CONFIG when path is empty), then environment variables.
// The result is not validated; call Validate after applying flags.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.Root = envOr("ROOT", cfg.Root)
	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = envOr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.LogOutput = envOr("LOG_OUTPUT", cfg.LogOutput)
	cfg.IndexEnabled = envBool("INDEX_ENABLED", cfg.IndexEnabled)
	cfg.IndexBackend = envOr("INDEX_BACKEND", cfg.IndexBackend)
	cfg.IndexPath = envOr("INDEX_PATH", cfg.IndexPath)
	cfg.FullScanOnStartup = envBool("FULL_SCAN_ON_STARTUP", cfg.FullScanOnStartup)
	cfg.UpdateFullScan = envBool("UPDATE_FULL_SCAN", cfg.UpdateFullScan)
	cfg.CleanupEnabled = envBool("CLEANUP_ENABLED", cfg.CleanupEnabled)
	cfg.CleanupAt = envOr("CLEANUP_AT", cfg.CleanupAt)
	cfg.UpdateAt = envOr("UPDATE_AT", cfg.UpdateAt)
	cfg.DefaultPageSize = envInt("DEFAULT_PAGE_SIZE", cfg.DefaultPageSize)
	cfg.ListingCacheSize = envInt("LISTING_CACHE_SIZE", cfg.ListingCacheSize)
	cfg.S3Endpoint = envOr("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Bucket = envOr("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = envOr("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = envOr("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Region = envOr("S3_REGION", cfg.S3Region)
	cfg.S3UseSSL = envBool("S3_USE_SSL", cfg.S3UseSSL)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)

	if v := os.Getenv("RETENTION"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("RETENTION: %w", err)
		}
		cfg.Retention = Duration{d}
	}

	return cfg, nil
}

// Validate checks the configuration and resolves Root to an absolute,
// symlink-free directory path.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("ROOT is required")
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", abs)
	}
	c.Root = abs

	if c.Retention.Duration <= 0 {
		return fmt.Errorf("retention must be positive, got %s", c.Retention.Duration)
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > 100 {
		return fmt.Errorf("default page size must be in [1,100], got %d", c.DefaultPageSize)
	}
	if c.ListingCacheSize < 0 {
		return fmt.Errorf("listing cache size must not be negative")
	}

	cleanup, err := schedule.ParseAt(c.CleanupAt)
	if err != nil {
		return fmt.Errorf("CLEANUP_AT: %w", err)
	}
	update, err := schedule.ParseAt(c.UpdateAt)
	if err != nil {
		return fmt.Errorf("UPDATE_AT: %w", err)
	}
	if cleanup == update {
		return fmt.Errorf("CLEANUP_AT and UPDATE_AT must differ (both %s)", cleanup)
	}

	switch c.IndexBackend {
	case "file":
		if c.IndexPath == "" {
			return fmt.Errorf("INDEX_PATH is required for the file index backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 index backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres index backend")
		}
	default:
		return fmt.Errorf("unknown index backend %q (want file, s3 or postgres)", c.IndexBackend)
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
