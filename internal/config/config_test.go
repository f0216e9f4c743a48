package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "./data/cache", cfg.Cache.Dir)
	assert.Equal(t, 1000, cfg.Listing.Capacity)
	assert.Equal(t, 2, cfg.Thumbnail.PoolSize)
	assert.Equal(t, 1, cfg.FastProxy.PoolSize)
	assert.Equal(t, 1, cfg.HDProxy.PoolSize)
	assert.Equal(t, 0, cfg.HDProxy.MaxDimension)
	assert.Equal(t, "anonymized", cfg.Analytics.IPMode)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
backend:
  base_url: "http://backend.internal:8000"
analytics:
  ip_mode: "full"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://backend.internal:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "full", cfg.Analytics.IPMode)
	// unset fields keep their defaults
	assert.Equal(t, "./data/cache", cfg.Cache.Dir)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GALLERYEDGE_SERVER_PORT", "7000")
	t.Setenv("GALLERYEDGE_ANALYTICS_IP_MODE", "off")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "off", cfg.Analytics.IPMode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad port high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad logging level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad logging format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"empty backend url", func(c *Config) { c.Backend.BaseURL = "" }, true},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }, true},
		{"zero listing capacity", func(c *Config) { c.Listing.Capacity = 0 }, true},
		{"zero thumbnail pool", func(c *Config) { c.Thumbnail.PoolSize = 0 }, true},
		{"bad ip mode", func(c *Config) { c.Analytics.IPMode = "bogus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			var cfg Config
			require.NoError(t, v.Unmarshal(&cfg))

			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", c.Address())
}
