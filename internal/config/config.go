// Package config loads and validates lottery crawler configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retention RetentionConfig `mapstructure:"retention"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// FetcherConfig shapes upstream requests and retries.
type FetcherConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Homepage        string        `mapstructure:"homepage"`
	TimeoutSeconds  int           `mapstructure:"timeout_seconds"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MinDelay        time.Duration `mapstructure:"min_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	UserAgents      []string      `mapstructure:"user_agents"`
	FallbackEnabled bool          `mapstructure:"fallback_enabled"`
}

// Timeout returns the per-request timeout.
func (f FetcherConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// CrawlerConfig governs the orchestrator.
type CrawlerConfig struct {
	Codes          []string `mapstructure:"codes"`
	PageSize       int      `mapstructure:"page_size"`
	ManualPageSize int      `mapstructure:"manual_page_size"`
	Timezone       string   `mapstructure:"timezone"`
	ResolveScope   string   `mapstructure:"resolve_scope"`
}

// Location loads the configured timezone.
func (c CrawlerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SchedulerConfig controls the cron jobs.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CrawlSpec   string `mapstructure:"crawl_spec"`
	CleanupSpec string `mapstructure:"cleanup_spec"`
	RunOnStart  bool   `mapstructure:"run_on_start"`
}

// Backup sink kinds.
const (
	BackupLocal = "local"
	BackupGCS   = "gcs"
	BackupNone  = "none"
)

// RetentionConfig controls the cleanup job.
type RetentionConfig struct {
	Days       int    `mapstructure:"days"`
	BackupKind string `mapstructure:"backup_kind"`
	BackupDir  string `mapstructure:"backup_dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	GCSPrefix  string `mapstructure:"gcs_prefix"`
}

// APIConfig tunes the read API middleware.
type APIConfig struct {
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	CORSOrigins        []string `mapstructure:"cors_origins"`
}

// LoggingConfig toggles zap development features and the rotated file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOTTERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 5)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate_on_start", true)

	v.SetDefault("fetcher.endpoint", "https://www.cwl.gov.cn/cwl_admin/front/cwlkj/search/kjxx/findDrawNotice")
	v.SetDefault("fetcher.homepage", "https://www.cwl.gov.cn/")
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.base_delay", "2s")
	v.SetDefault("fetcher.min_delay", "1s")
	v.SetDefault("fetcher.max_delay", "3s")
	v.SetDefault("fetcher.user_agents", []string{})
	v.SetDefault("fetcher.fallback_enabled", true)

	v.SetDefault("crawler.codes", []string{"ssq", "kl8", "qlc", "3d"})
	v.SetDefault("crawler.page_size", 30)
	v.SetDefault("crawler.manual_page_size", 5)
	v.SetDefault("crawler.timezone", "Asia/Shanghai")
	v.SetDefault("crawler.resolve_scope", "all")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.crawl_spec", "20 10 * * *")
	v.SetDefault("scheduler.cleanup_spec", "0 2 * * 0")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("retention.days", 365)
	v.SetDefault("retention.backup_kind", BackupLocal)
	v.SetDefault("retention.backup_dir", "/tmp/backups")
	v.SetDefault("retention.gcs_bucket", "")
	v.SetDefault("retention.gcs_prefix", "lottery-backups")

	v.SetDefault("api.rate_limit_per_minute", 100)
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DB.Driver)
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxRetries <= 0 {
		return fmt.Errorf("fetcher.max_retries must be > 0")
	}
	if c.Fetcher.MinDelay > c.Fetcher.MaxDelay {
		return fmt.Errorf("fetcher.min_delay must not exceed fetcher.max_delay")
	}
	if len(c.Crawler.Codes) == 0 {
		return fmt.Errorf("crawler.codes must not be empty")
	}
	if c.Crawler.PageSize <= 0 || c.Crawler.ManualPageSize <= 0 {
		return fmt.Errorf("crawler.page_size and crawler.manual_page_size must be > 0")
	}
	if _, err := c.Crawler.Location(); err != nil {
		return err
	}
	if !slices.Contains([]string{"all", "prior"}, c.Crawler.ResolveScope) {
		return fmt.Errorf("crawler.resolve_scope must be \"all\" or \"prior\", got %q", c.Crawler.ResolveScope)
	}
	if c.Scheduler.Enabled && (c.Scheduler.CrawlSpec == "" || c.Scheduler.CleanupSpec == "") {
		return fmt.Errorf("scheduler specs must be set when the scheduler is enabled")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be > 0")
	}
	switch c.Retention.BackupKind {
	case BackupLocal:
		if c.Retention.BackupDir == "" {
			return fmt.Errorf("retention.backup_dir is required for local backups")
		}
	case BackupGCS:
		if c.Retention.GCSBucket == "" {
			return fmt.Errorf("retention.gcs_bucket is required for gcs backups")
		}
	case BackupNone:
	default:
		return fmt.Errorf("retention.backup_kind must be local, gcs or none, got %q", c.Retention.BackupKind)
	}
	if c.API.RateLimitPerMinute < 0 {
		return fmt.Errorf("api.rate_limit_per_minute must be >= 0")
	}
	return nil
}
