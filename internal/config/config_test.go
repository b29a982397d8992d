package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigFile, "ROOT", "LISTEN_ADDR", "RETENTION", "INDEX_BACKEND",
		"INDEX_ENABLED", "CLEANUP_AT", "UPDATE_AT", "DEFAULT_PAGE_SIZE", "DATABASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", cfg.ListenAddr)
	assert.True(t, cfg.IndexEnabled)
	assert.Equal(t, "file", cfg.IndexBackend)
	assert.Equal(t, "file_index.json", cfg.IndexPath)
	assert.Equal(t, 180*24*time.Hour, cfg.Retention.Duration)
	assert.True(t, cfg.FullScanOnStartup)
	assert.Equal(t, "00:00", cfg.CleanupAt)
	assert.Equal(t, "00:05", cfg.UpdateAt)
	assert.Equal(t, 20, cfg.DefaultPageSize)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "folderserve.toml")
	body := `
root = "/srv/files"
listen_addr = ":8081"
retention = "30d"
index_backend = "s3"
update_at = "03:15"

[mime_types]
".webm" = "video/webm"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	t.Setenv("LISTEN_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/files", cfg.Root)
	assert.Equal(t, ":9999", cfg.ListenAddr, "env overrides file")
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.Duration)
	assert.Equal(t, "s3", cfg.IndexBackend)
	assert.Equal(t, "03:15", cfg.UpdateAt)
	assert.Equal(t, "00:00", cfg.CleanupAt, "unset keys keep defaults")
	assert.Equal(t, "video/webm", cfg.MIMETypes[".webm"])
}

func TestLoadConfigFromEnvVar(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte(`default_page_size = 50`), 0644))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.DefaultPageSize)
}

func TestLoadBadRetention(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETENTION", "forever")
	_, err := Load("")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("180d")
	require.NoError(t, err)
	assert.Equal(t, 4320*time.Hour, d)

	d, err = ParseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"missing root", func(c *Config) { c.Root = "" }, true},
		{"root is a file", func(c *Config) { c.Root = file }, true},
		{"root missing", func(c *Config) { c.Root = filepath.Join(root, "nope") }, true},
		{"zero retention", func(c *Config) { c.Retention = Duration{} }, true},
		{"same fire time", func(c *Config) { c.UpdateAt = "00:00" }, true},
		{"bad fire time", func(c *Config) { c.CleanupAt = "25:00" }, true},
		{"unknown backend", func(c *Config) { c.IndexBackend = "redis" }, true},
		{"postgres needs url", func(c *Config) { c.IndexBackend = "postgres" }, true},
		{"postgres with url", func(c *Config) {
			c.IndexBackend = "postgres"
			c.DatabaseURL = "postgres://localhost/x"
		}, false},
		{"page size too big", func(c *Config) { c.DefaultPageSize = 101 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Root = root
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

func TestValidateResolvesRoot(t *testing.T) {
	real := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	cfg := Defaults()
	cfg.Root = link
	require.NoError(t, cfg.Validate())

	want, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)
	assert.Equal(t, want, cfg.Root)
}
