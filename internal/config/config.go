// Package config loads and validates watcher configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Provider names accepted by the pluggable backends.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderFile     = "file"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
	ProviderNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	DB        DBConfig        `mapstructure:"db"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// WatchlistConfig locates the spreadsheet of file numbers.
type WatchlistConfig struct {
	Path      string `mapstructure:"path"`
	Column    string `mapstructure:"column"`
	Sheet     string `mapstructure:"sheet"`
	Delimiter string `mapstructure:"delimiter"`
}

// CrawlConfig governs gazette fetching.
type CrawlConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	WebURL         string   `mapstructure:"web_url"`
	UserAgent      string   `mapstructure:"user_agent"`
	RespectRobots  bool     `mapstructure:"respect_robots"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	BackoffMs      int      `mapstructure:"backoff_ms"`
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
	RateBurst      int      `mapstructure:"rate_burst"`
	Parallel       bool     `mapstructure:"parallel"`
	Sections       []string `mapstructure:"sections"`
}

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// GuardConfig selects the once-per-day marker backend.
type GuardConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
	Timezone string `mapstructure:"timezone"`
}

// LedgerConfig selects the execution ledger backend.
type LedgerConfig struct {
	Provider string `mapstructure:"provider"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// NotifyConfig groups the notification channels.
type NotifyConfig struct {
	Email  EmailConfig  `mapstructure:"email"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	From           string   `mapstructure:"from"`
	To             []string `mapstructure:"to"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// MetricsConfig controls where run processes push their metrics. An empty
// PushgatewayURL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
	Instance       string `mapstructure:"instance"`
}

// DashboardConfig controls the dashboard API.
type DashboardConfig struct {
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GAZETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("watchlist.path", "list/list.xlsx")
	v.SetDefault("watchlist.column", "NÚMERO DO PROCESSO")
	v.SetDefault("watchlist.sheet", "")
	v.SetDefault("watchlist.delimiter", ",")
	v.SetDefault("crawl.base_url", "https://www.in.gov.br/leiturajornal")
	v.SetDefault("crawl.web_url", "https://www.in.gov.br")
	v.SetDefault("crawl.user_agent", "gazette-watch/1.0")
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.timeout_seconds", 30)
	v.SetDefault("crawl.max_attempts", 3)
	v.SetDefault("crawl.backoff_ms", 500)
	v.SetDefault("crawl.rate_per_second", 2.0)
	v.SetDefault("crawl.rate_burst", 1)
	v.SetDefault("crawl.parallel", false)
	v.SetDefault("crawl.sections", []string{"do1", "do2", "do3"})
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.local_dir", "data")
	v.SetDefault("guard.provider", ProviderFile)
	v.SetDefault("guard.path", "dou_lock.txt")
	v.SetDefault("guard.timezone", "")
	v.SetDefault("ledger.provider", ProviderPostgres)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.host", "smtp.gmail.com")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.timeout_seconds", 30)
	v.SetDefault("notify.pubsub.enabled", false)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("dashboard.request_timeout_seconds", 30)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "gazette_watch")
	v.SetDefault("metrics.instance", "")
}

// bindLegacyEnv keeps the variable names used by earlier cron deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"notify.email.from":     {"GAZETTE_NOTIFY_EMAIL_FROM", "SENDER_EMAIL"},
		"notify.email.to":       {"GAZETTE_NOTIFY_EMAIL_TO", "RECIPIENT_EMAIL"},
		"notify.email.password": {"GAZETTE_NOTIFY_EMAIL_PASSWORD", "EMAIL_PASSWORD"},
		"db.dsn":                {"GAZETTE_DB_DSN", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Watchlist.Path) == "" {
		return fmt.Errorf("watchlist.path must be set")
	}
	if utf8.RuneCountInString(c.Watchlist.Delimiter) > 1 {
		return fmt.Errorf("watchlist.delimiter must be a single character")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Crawl.MaxAttempts <= 0 {
		return fmt.Errorf("crawl.max_attempts must be > 0")
	}
	if c.Crawl.BackoffMs < 0 {
		return fmt.Errorf("crawl.backoff_ms must be >= 0")
	}
	if c.Crawl.RatePerSecond < 0 {
		return fmt.Errorf("crawl.rate_per_second must be >= 0")
	}
	if _, err := c.Crawl.SectionList(); err != nil {
		return err
	}
	switch c.Archive.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	switch c.Guard.Provider {
	case ProviderFile:
		if c.Guard.Path == "" {
			return fmt.Errorf("guard.path must be set when guard.provider is file")
		}
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when guard.provider is postgres")
		}
	default:
		return fmt.Errorf("guard.provider %q is not supported", c.Guard.Provider)
	}
	if _, err := c.Guard.Location(); err != nil {
		return err
	}
	switch c.Ledger.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when ledger.provider is postgres")
		}
	default:
		return fmt.Errorf("ledger.provider %q is not supported", c.Ledger.Provider)
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.From == "" {
			return fmt.Errorf("notify.email.from must be set when email is enabled")
		}
		if len(c.Notify.Email.To) == 0 {
			return fmt.Errorf("notify.email.to must be set when email is enabled")
		}
	}
	if c.Notify.PubSub.Enabled && (c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicName == "") {
		return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Metrics.PushgatewayURL != "" {
		u, err := url.Parse(c.Metrics.PushgatewayURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("metrics.pushgateway_url must be an http(s) URL")
		}
		if c.Metrics.Job == "" {
			return fmt.Errorf("metrics.job must be set when metrics.pushgateway_url is set")
		}
	}
	return nil
}

// SectionList converts the configured section names.
func (c CrawlConfig) SectionList() ([]gazette.Section, error) {
	if len(c.Sections) == 0 {
		return nil, fmt.Errorf("crawl.sections must list at least one section")
	}
	out := make([]gazette.Section, 0, len(c.Sections))
	for _, name := range c.Sections {
		section, err := gazette.ParseSection(name)
		if err != nil {
			return nil, fmt.Errorf("crawl.sections: %w", err)
		}
		out = append(out, section)
	}
	return out, nil
}

// Timeout returns the per-request timeout.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the initial retry delay.
func (c CrawlConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// Location resolves the timezone used for calendar days. Empty means local.
func (c GuardConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("guard.timezone: %w", err)
	}
	return loc, nil
}

// DelimiterRune returns the CSV delimiter, defaulting to a comma.
func (c WatchlistConfig) DelimiterRune() rune {
	r, size := utf8.DecodeRuneInString(c.Delimiter)
	if size == 0 {
		return ','
	}
	return r
}
