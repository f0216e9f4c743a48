// Package config provides configuration management for galleryedge using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultBackendTimeout = 30 * time.Second

	defaultListingTTL      = 3600 * time.Second
	defaultListingCapacity = 1000

	defaultThumbnailMaxWidth  = 400
	defaultThumbnailQuality   = 6
	defaultThumbnailPoolSize  = 2
	defaultThumbnailTimeout   = 30 * time.Second
	defaultThumbnailProfile   = 1

	defaultFastProxyMaxDimension = 1280
	defaultFastProxyCRF          = 28
	defaultFastProxyPoolSize     = 1
	defaultFastProxyTimeout      = 3600 * time.Second
	defaultFastProxyProfile      = 1

	defaultHDProxyMaxDimension = 0
	defaultHDProxyCRF          = 20
	defaultHDProxyPoolSize     = 1
	defaultHDProxyTimeout      = 3600 * time.Second
	defaultHDProxyProfile      = 1

	defaultRetentionDays     = 90
	defaultRetentionInterval = time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Listing   ListingConfig   `mapstructure:"listing"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	FastProxy ProxyConfig     `mapstructure:"fast_proxy"`
	HDProxy   ProxyConfig     `mapstructure:"hd_proxy"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string    `mapstructure:"host"`
	Port            int       `mapstructure:"port"`
	ReadTimeout     Duration  `mapstructure:"read_timeout"`
	WriteTimeout    Duration  `mapstructure:"write_timeout"`
	ShutdownTimeout Duration  `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string  `mapstructure:"cors_origins"`
	AdminToken      string    `mapstructure:"admin_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// BackendConfig holds the upstream file-share Backend's address and
// outbound call behavior.
type BackendConfig struct {
	BaseURL string   `mapstructure:"base_url"`
	Timeout Duration `mapstructure:"timeout"`
}

// CacheConfig holds the content-addressed rendition cache's directory.
// MaxSize (0 = unlimited) is loaded but not read by any component: the cache
// does not evict, and nothing logs a warning, when the on-disk footprint
// exceeds it.
type CacheConfig struct {
	Dir     string   `mapstructure:"dir"`
	MaxSize ByteSize `mapstructure:"max_size"`
}

// ListingConfig holds the share listing cache's TTL and capacity.
type ListingConfig struct {
	TTL      Duration `mapstructure:"ttl"`
	Capacity int      `mapstructure:"capacity"`
}

// ThumbnailConfig holds thumbnail rendition parameters.
type ThumbnailConfig struct {
	MaxWidth       int      `mapstructure:"max_width"`
	Quality        int      `mapstructure:"quality"`
	PoolSize       int      `mapstructure:"pool_size"`
	Timeout        Duration `mapstructure:"timeout"`
	ProfileVersion int      `mapstructure:"profile_version"`
}

// ProxyConfig holds parameters shared by the fast and HD proxy renditions.
// MaxDimension 0 means "no cap" (used by HD proxy by default).
type ProxyConfig struct {
	MaxDimension   int      `mapstructure:"max_dimension"`
	CRF            int      `mapstructure:"crf"`
	Preset         string   `mapstructure:"preset"`
	AudioBitrateKb int      `mapstructure:"audio_bitrate_kb"`
	PoolSize       int      `mapstructure:"pool_size"`
	Timeout        Duration `mapstructure:"timeout"`
	ProfileVersion int      `mapstructure:"profile_version"`
}

// FFmpegConfig holds FFmpeg/FFprobe binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // empty = auto-detect
	ProbePath  string `mapstructure:"probe_path"`  // empty = auto-detect
}

// AnalyticsConfig holds the embedded event store's behavior.
type AnalyticsConfig struct {
	DBPath            string   `mapstructure:"db_path"`
	RetentionDays     int      `mapstructure:"retention_days"` // <= 0 disables the sweep
	RetentionInterval Duration `mapstructure:"retention_interval"`
	IPMode            string   `mapstructure:"ip_mode"` // full, anonymized, off
	EnableGalleryView bool     `mapstructure:"enable_gallery_view"`
	EnableFileDown    bool     `mapstructure:"enable_file_download"`
	EnableZipDown     bool     `mapstructure:"enable_zip_download"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with GALLERYEDGE_ and use underscores
// for nesting. Example: GALLERYEDGE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/galleryedge")
		v.AddConfigPath("$HOME/.galleryedge")
	}

	v.SetEnvPrefix("GALLERYEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.admin_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("backend.base_url", "http://localhost:9000")
	v.SetDefault("backend.timeout", defaultBackendTimeout)

	v.SetDefault("cache.dir", "./data/cache")

	v.SetDefault("listing.ttl", defaultListingTTL)
	v.SetDefault("listing.capacity", defaultListingCapacity)

	v.SetDefault("thumbnail.max_width", defaultThumbnailMaxWidth)
	v.SetDefault("thumbnail.quality", defaultThumbnailQuality)
	v.SetDefault("thumbnail.pool_size", defaultThumbnailPoolSize)
	v.SetDefault("thumbnail.timeout", defaultThumbnailTimeout)
	v.SetDefault("thumbnail.profile_version", defaultThumbnailProfile)

	v.SetDefault("fast_proxy.max_dimension", defaultFastProxyMaxDimension)
	v.SetDefault("fast_proxy.crf", defaultFastProxyCRF)
	v.SetDefault("fast_proxy.preset", "veryfast")
	v.SetDefault("fast_proxy.audio_bitrate_kb", 128)
	v.SetDefault("fast_proxy.pool_size", defaultFastProxyPoolSize)
	v.SetDefault("fast_proxy.timeout", defaultFastProxyTimeout)
	v.SetDefault("fast_proxy.profile_version", defaultFastProxyProfile)

	v.SetDefault("hd_proxy.max_dimension", defaultHDProxyMaxDimension)
	v.SetDefault("hd_proxy.crf", defaultHDProxyCRF)
	v.SetDefault("hd_proxy.preset", "veryfast")
	v.SetDefault("hd_proxy.audio_bitrate_kb", 128)
	v.SetDefault("hd_proxy.pool_size", defaultHDProxyPoolSize)
	v.SetDefault("hd_proxy.timeout", defaultHDProxyTimeout)
	v.SetDefault("hd_proxy.profile_version", defaultHDProxyProfile)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	v.SetDefault("analytics.db_path", "./data/analytics.db")
	v.SetDefault("analytics.retention_days", defaultRetentionDays)
	v.SetDefault("analytics.retention_interval", defaultRetentionInterval)
	v.SetDefault("analytics.ip_mode", "anonymized")
	v.SetDefault("analytics.enable_gallery_view", true)
	v.SetDefault("analytics.enable_file_download", true)
	v.SetDefault("analytics.enable_zip_download", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}

	if c.Listing.Capacity < 1 {
		return fmt.Errorf("listing.capacity must be at least 1")
	}

	if c.Thumbnail.PoolSize < 1 {
		return fmt.Errorf("thumbnail.pool_size must be at least 1")
	}
	if c.FastProxy.PoolSize < 1 {
		return fmt.Errorf("fast_proxy.pool_size must be at least 1")
	}
	if c.HDProxy.PoolSize < 1 {
		return fmt.Errorf("hd_proxy.pool_size must be at least 1")
	}

	if c.Analytics.DBPath == "" {
		return fmt.Errorf("analytics.db_path is required")
	}
	validIPModes := map[string]bool{"full": true, "anonymized": true, "off": true}
	if !validIPModes[c.Analytics.IPMode] {
		return fmt.Errorf("analytics.ip_mode must be one of: full, anonymized, off")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
