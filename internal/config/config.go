package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Strapi      StrapiConfig      `mapstructure:"strapi"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Session     SessionConfig     `mapstructure:"session"`
	Pagination  PaginationConfig  `mapstructure:"pagination"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds
}

// StrapiConfig describes the headless CMS the dashboard talks to
type StrapiConfig struct {
	BaseURL     string `mapstructure:"base_url" validate:"required"`
	Prefix      string `mapstructure:"prefix"`
	Token       string `mapstructure:"token"`
	Timeout     int    `mapstructure:"timeout"` // seconds
	ReadRetries int    `mapstructure:"read_retries"`
	HealthPath  string `mapstructure:"health_path"`
}

// CacheConfig contains query cache configuration
type CacheConfig struct {
	Shards   int `mapstructure:"shards" validate:"min=1"`
	TTL      int `mapstructure:"ttl" validate:"min=0"`       // seconds an entry is served without refetch
	StaleTTL int `mapstructure:"stale_ttl" validate:"min=0"` // seconds an entry stays readable after a failure
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	HTTPMaxWorkers       int `mapstructure:"http_max_workers" validate:"min=1"`
	UploadWorkers        int `mapstructure:"upload_workers" validate:"min=1"`
	BackendMaxConcurrent int `mapstructure:"backend_max_concurrent" validate:"min=1"`
}

// SessionConfig contains dashboard session cookie settings
type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	HashKey    string `mapstructure:"hash_key"`
	BlockKey   string `mapstructure:"block_key"`
	CSRFKey    string `mapstructure:"csrf_key"`
	TTL        int    `mapstructure:"ttl"` // seconds
	Secure     bool   `mapstructure:"secure"`
}

// PaginationConfig contains list view defaults
type PaginationConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// UploadConfig contains upload limits
type UploadConfig struct {
	MaxFileBytes   int64 `mapstructure:"max_file_bytes"`
	MaxFiles       int   `mapstructure:"max_files"`
	CleanupOrphans bool  `mapstructure:"cleanup_orphans"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// RequestTimeoutDuration returns the per-request timeout
func (s ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// TimeoutDuration returns the backend call timeout
func (s StrapiConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// APIBase returns base URL joined with the REST prefix
func (s StrapiConfig) APIBase() string {
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.Trim(s.Prefix, "/")
}

// Get returns the singleton configuration instance
func Get() *Config {
	once.Do(func() {
		if instance == nil {
			instance = &Config{}
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	return load(configPath)
}

func load(configPath string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	bindEnvVars(v)

	// Unmarshal configuration
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	instance = cfg
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30)

	// Strapi defaults
	v.SetDefault("strapi.base_url", "http://localhost:1337")
	v.SetDefault("strapi.prefix", "/api")
	v.SetDefault("strapi.token", "")
	v.SetDefault("strapi.timeout", 15)
	v.SetDefault("strapi.read_retries", 2)
	v.SetDefault("strapi.health_path", "/_health")

	// Cache defaults
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.ttl", 2)
	v.SetDefault("cache.stale_ttl", 900)

	// Concurrency defaults
	v.SetDefault("concurrency.http_max_workers", 100)
	v.SetDefault("concurrency.upload_workers", 4)
	v.SetDefault("concurrency.backend_max_concurrent", 10)

	// Session defaults
	v.SetDefault("session.cookie_name", "muscledenz_session")
	v.SetDefault("session.hash_key", "")
	v.SetDefault("session.block_key", "")
	v.SetDefault("session.csrf_key", "")
	v.SetDefault("session.ttl", 86400)
	v.SetDefault("session.secure", false)

	// Pagination defaults
	v.SetDefault("pagination.default_page_size", 25)
	v.SetDefault("pagination.max_page_size", 100)

	// Upload defaults
	v.SetDefault("upload.max_file_bytes", 10<<20)
	v.SetDefault("upload.max_files", 10)
	v.SetDefault("upload.cleanup_orphans", true)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.host", "APP_SERVER_HOST")
	v.BindEnv("server.port", "APP_SERVER_PORT")
	v.BindEnv("server.request_timeout", "APP_SERVER_REQUEST_TIMEOUT")

	// Strapi
	v.BindEnv("strapi.base_url", "APP_STRAPI_BASE_URL")
	v.BindEnv("strapi.prefix", "APP_STRAPI_PREFIX")
	v.BindEnv("strapi.token", "APP_STRAPI_TOKEN")
	v.BindEnv("strapi.timeout", "APP_STRAPI_TIMEOUT")
	v.BindEnv("strapi.read_retries", "APP_STRAPI_READ_RETRIES")
	v.BindEnv("strapi.health_path", "APP_STRAPI_HEALTH_PATH")

	// Cache
	v.BindEnv("cache.shards", "APP_CACHE_SHARDS")
	v.BindEnv("cache.ttl", "APP_CACHE_TTL")
	v.BindEnv("cache.stale_ttl", "APP_CACHE_STALE_TTL")

	// Concurrency
	v.BindEnv("concurrency.http_max_workers", "APP_CONCURRENCY_HTTP_MAX_WORKERS")
	v.BindEnv("concurrency.upload_workers", "APP_CONCURRENCY_UPLOAD_WORKERS")
	v.BindEnv("concurrency.backend_max_concurrent", "APP_CONCURRENCY_BACKEND_MAX_CONCURRENT")

	// Session
	v.BindEnv("session.cookie_name", "APP_SESSION_COOKIE_NAME")
	v.BindEnv("session.hash_key", "APP_SESSION_HASH_KEY")
	v.BindEnv("session.block_key", "APP_SESSION_BLOCK_KEY")
	v.BindEnv("session.csrf_key", "APP_SESSION_CSRF_KEY")
	v.BindEnv("session.ttl", "APP_SESSION_TTL")
	v.BindEnv("session.secure", "APP_SESSION_SECURE")

	// Pagination
	v.BindEnv("pagination.default_page_size", "APP_PAGINATION_DEFAULT_PAGE_SIZE")
	v.BindEnv("pagination.max_page_size", "APP_PAGINATION_MAX_PAGE_SIZE")

	// Upload
	v.BindEnv("upload.max_file_bytes", "APP_UPLOAD_MAX_FILE_BYTES")
	v.BindEnv("upload.max_files", "APP_UPLOAD_MAX_FILES")
	v.BindEnv("upload.cleanup_orphans", "APP_UPLOAD_CLEANUP_ORPHANS")

	// Log
	v.BindEnv("log.level", "APP_LOG_LEVEL")
	v.BindEnv("log.development", "APP_LOG_DEVELOPMENT")
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	// Validate Server
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Server.RequestTimeout < 1 {
		return fmt.Errorf("server.request_timeout must be at least 1")
	}

	// Validate Strapi
	if cfg.Strapi.BaseURL == "" {
		return fmt.Errorf("strapi.base_url is required")
	}
	if !strings.HasPrefix(cfg.Strapi.BaseURL, "http://") && !strings.HasPrefix(cfg.Strapi.BaseURL, "https://") {
		return fmt.Errorf("strapi.base_url must be an http(s) URL")
	}
	if cfg.Strapi.Timeout < 1 {
		return fmt.Errorf("strapi.timeout must be at least 1")
	}
	if cfg.Strapi.ReadRetries < 0 {
		return fmt.Errorf("strapi.read_retries must be non-negative")
	}

	// Validate Cache
	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}
	if cfg.Cache.StaleTTL < cfg.Cache.TTL {
		return fmt.Errorf("cache.stale_ttl must be at least cache.ttl")
	}

	// Validate Concurrency
	if cfg.Concurrency.HTTPMaxWorkers < 1 {
		return fmt.Errorf("concurrency.http_max_workers must be at least 1")
	}
	if cfg.Concurrency.UploadWorkers < 1 {
		return fmt.Errorf("concurrency.upload_workers must be at least 1")
	}
	if cfg.Concurrency.BackendMaxConcurrent < 1 {
		return fmt.Errorf("concurrency.backend_max_concurrent must be at least 1")
	}

	// Validate Session
	if cfg.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if cfg.Session.TTL < 60 {
		return fmt.Errorf("session.ttl must be at least 60 seconds")
	}
	for name, key := range map[string]string{
		"session.hash_key":  cfg.Session.HashKey,
		"session.block_key": cfg.Session.BlockKey,
		"session.csrf_key":  cfg.Session.CSRFKey,
	} {
		if key != "" && len(key) != 32 {
			return fmt.Errorf("%s must be 32 bytes when set", name)
		}
	}

	// Validate Pagination
	if cfg.Pagination.DefaultPageSize < 1 {
		return fmt.Errorf("pagination.default_page_size must be at least 1")
	}
	if cfg.Pagination.MaxPageSize < cfg.Pagination.DefaultPageSize {
		return fmt.Errorf("pagination.max_page_size must be at least pagination.default_page_size")
	}

	// Validate Upload
	if cfg.Upload.MaxFileBytes < 1 {
		return fmt.Errorf("upload.max_file_bytes must be positive")
	}
	if cfg.Upload.MaxFiles < 1 {
		return fmt.Errorf("upload.max_files must be at least 1")
	}

	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Reset instance to allow reload
	instance = nil
	once = sync.Once{}

	return load(configPath)
}
