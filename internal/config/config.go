package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobharvest/internal/adapter"
)

// EnvConfigPath names the environment variable consulted when no --config
// flag is given.
const EnvConfigPath = "JOBHARVEST_CONFIG"

// DefaultPath is used when neither the flag nor the environment names a file.
const DefaultPath = "config.yaml"

const slackWebhookPrefix = "https://hooks.slack.com/"

// Defaults applied to every site that leaves the field unset.
const (
	DefaultMaxPages      = 10
	DefaultMaxEmptyPages = 3
	DefaultMinDelay      = 2 * time.Second
	DefaultMaxDelay      = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultBackoffBase   = 2 * time.Second
	DefaultBackoffCap    = 60 * time.Second
	DefaultRetention     = 30 * 24 * time.Hour
)

// Config is the root configuration for jobharvest.
type Config struct {
	Schedule     string
	LogLevel     string
	Concurrency  int // 0 means one worker per site
	Store        StoreConfig
	Lock         LockConfig
	Fetch        FetchConfig
	Sites        []SiteConfig
	Filters      FilterConfig
	Documents    DocumentsConfig
	Notification NotificationConfig
	Cleanup      CleanupConfig
	Metrics      MetricsConfig
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres" or "memory"
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// LockConfig selects how the single writer per site is enforced.
type LockConfig struct {
	Driver   string // "local" or "redis"
	RedisURL string
	TTL      time.Duration
}

// FetchConfig holds settings shared by every site's fetcher.
type FetchConfig struct {
	Timeout    time.Duration
	UserAgents []string // empty uses the built-in pool
	HostMinGap time.Duration
}

// SiteConfig describes one source to poll.
type SiteConfig struct {
	Name              string
	Kind              string
	BaseURL           string
	SearchURLTemplate string
	APIBase           string
	Company           string
	Token             string
	Enabled           bool
	MaxPages          int
	MaxEmptyPages     int
	MinDelay          time.Duration
	MaxDelay          time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	Headers           map[string]string
	Selectors         SelectorConfig
}

// SelectorConfig overrides the html adapter's CSS selector cascades.
type SelectorConfig struct {
	Card       []string `yaml:"card"`
	Title      []string `yaml:"title"`
	Company    []string `yaml:"company"`
	Location   []string `yaml:"location"`
	Pagination []string `yaml:"pagination"`
}

// AdapterSite is the adapter-facing view of the site.
func (s SiteConfig) AdapterSite() adapter.Site {
	return adapter.Site{
		Name:              s.Name,
		Kind:              s.Kind,
		BaseURL:           s.BaseURL,
		SearchURLTemplate: s.SearchURLTemplate,
		APIBase:           s.APIBase,
		Company:           s.Company,
		Token:             s.Token,
		Selectors: adapter.Selectors{
			Card:       s.Selectors.Card,
			Title:      s.Selectors.Title,
			Company:    s.Selectors.Company,
			Location:   s.Selectors.Location,
			Pagination: s.Selectors.Pagination,
		},
	}
}

// FilterConfig holds keyword and location filter settings.
type FilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	Locations            []string `yaml:"locations"`
	ExcludeLocations     []string `yaml:"exclude_locations"`
}

// DocumentsConfig controls the document generation phase.
type DocumentsConfig struct {
	Enabled   bool
	OutDir    string
	Template  string // path; empty uses the built-in template
	Summarize SummarizeConfig
}

// SummarizeConfig controls the optional LLM brief embedded in documents.
type SummarizeConfig struct {
	Enabled bool
	BaseURL string // defaults to the OpenAI API
	Model   string
	APIKey  string // usually ${OPENAI_API_KEY}
	Timeout time.Duration
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// CleanupConfig controls the retention phase.
type CleanupConfig struct {
	Retention      time.Duration
	DeleteVanished bool
}

// MetricsConfig controls the Prometheus endpoint served by `start`.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// EnabledSites returns the sites with enabled set, in file order.
func (c *Config) EnabledSites() []SiteConfig {
	var out []SiteConfig
	for _, s := range c.Sites {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Site looks a site up by name, case-insensitively.
func (c *Config) Site(name string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return SiteConfig{}, false
}

// Level maps log_level to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Schedule     string             `yaml:"schedule"`
	LogLevel     string             `yaml:"log_level"`
	Concurrency  int                `yaml:"concurrency"`
	Store        StoreConfig        `yaml:"store"`
	Lock         rawLockConfig      `yaml:"lock"`
	Fetch        rawFetchConfig     `yaml:"fetch"`
	Sites        []rawSiteConfig    `yaml:"sites"`
	Filters      FilterConfig       `yaml:"filters"`
	Documents    rawDocumentsConfig `yaml:"documents"`
	Notification NotificationConfig `yaml:"notification"`
	Cleanup      rawCleanupConfig   `yaml:"cleanup"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type rawLockConfig struct {
	Driver   string `yaml:"driver"`
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

type rawFetchConfig struct {
	Timeout    string   `yaml:"timeout"`
	UserAgents []string `yaml:"user_agents"`
	HostMinGap string   `yaml:"host_min_gap"`
}

type rawDocumentsConfig struct {
	Enabled   bool               `yaml:"enabled"`
	OutDir    string             `yaml:"out_dir"`
	Template  string             `yaml:"template"`
	Summarize rawSummarizeConfig `yaml:"summarize"`
}

type rawSummarizeConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

type rawCleanupConfig struct {
	Retention      string `yaml:"retention"`
	DeleteVanished bool   `yaml:"delete_vanished"`
}

type rawSiteConfig struct {
	Name              string            `yaml:"name"`
	Kind              string            `yaml:"kind"`
	BaseURL           string            `yaml:"base_url"`
	SearchURLTemplate string            `yaml:"search_url_template"`
	APIBase           string            `yaml:"api_base"`
	Company           string            `yaml:"company"`
	Token             string            `yaml:"token"`
	Enabled           *bool             `yaml:"enabled"`
	MaxPages          int               `yaml:"max_pages"`
	MaxEmptyPages     int               `yaml:"max_empty_pages"`
	DelayRange        []string          `yaml:"delay_range"`
	MaxRetries        *int              `yaml:"max_retries"`
	BackoffBase       string            `yaml:"backoff_base"`
	BackoffCap        string            `yaml:"backoff_cap"`
	Headers           map[string]string `yaml:"headers"`
	Selectors         SelectorConfig    `yaml:"selectors"`
}

// ResolvePath picks the config file: the flag value, then $JOBHARVEST_CONFIG,
// then ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// A .env file next to the config is loaded first so its variables can be
// referenced as ${VAR}; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		Schedule:     raw.Schedule,
		LogLevel:     raw.LogLevel,
		Concurrency:  raw.Concurrency,
		Store:        raw.Store,
		Filters:      raw.Filters,
		Notification: raw.Notification,
		Metrics:      raw.Metrics,
		Lock: LockConfig{
			Driver:   raw.Lock.Driver,
			RedisURL: raw.Lock.RedisURL,
		},
		Documents: DocumentsConfig{
			Enabled:  raw.Documents.Enabled,
			OutDir:   raw.Documents.OutDir,
			Template: raw.Documents.Template,
			Summarize: SummarizeConfig{
				Enabled: raw.Documents.Summarize.Enabled,
				BaseURL: raw.Documents.Summarize.BaseURL,
				Model:   raw.Documents.Summarize.Model,
				APIKey:  raw.Documents.Summarize.APIKey,
			},
		},
		Fetch:   FetchConfig{UserAgents: raw.Fetch.UserAgents},
		Cleanup: CleanupConfig{DeleteVanished: raw.Cleanup.DeleteVanished},
	}

	if cfg.Schedule == "" {
		cfg.Schedule = "@every 6h"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = "jobs.db"
	}
	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "local"
	}
	if cfg.Documents.OutDir == "" {
		cfg.Documents.OutDir = "documents"
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	var err error
	if cfg.Lock.TTL, err = parseDuration("lock.ttl", raw.Lock.TTL, 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Fetch.Timeout, err = parseDuration("fetch.timeout", raw.Fetch.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Fetch.HostMinGap, err = parseDuration("fetch.host_min_gap", raw.Fetch.HostMinGap, 0); err != nil {
		return nil, err
	}
	if cfg.Cleanup.Retention, err = parseDuration("cleanup.retention", raw.Cleanup.Retention, DefaultRetention); err != nil {
		return nil, err
	}
	if cfg.Documents.Summarize.Timeout, err = parseDuration("documents.summarize.timeout", raw.Documents.Summarize.Timeout, 60*time.Second); err != nil {
		return nil, err
	}

	for i, rs := range raw.Sites {
		site, err := buildSite(rs)
		if err != nil {
			return nil, fmt.Errorf("sites[%d]: %w", i, err)
		}
		cfg.Sites = append(cfg.Sites, site)
	}
	return cfg, nil
}

func buildSite(rs rawSiteConfig) (SiteConfig, error) {
	s := SiteConfig{
		Name:              strings.TrimSpace(rs.Name),
		Kind:              strings.ToLower(strings.TrimSpace(rs.Kind)),
		BaseURL:           rs.BaseURL,
		SearchURLTemplate: rs.SearchURLTemplate,
		APIBase:           rs.APIBase,
		Company:           rs.Company,
		Token:             rs.Token,
		Enabled:           rs.Enabled == nil || *rs.Enabled,
		MaxPages:          rs.MaxPages,
		MaxEmptyPages:     rs.MaxEmptyPages,
		MaxRetries:        DefaultMaxRetries,
		Headers:           rs.Headers,
		Selectors:         rs.Selectors,
	}
	if s.Kind == "" {
		s.Kind = adapter.KindHTML
	}
	if s.MaxPages == 0 {
		s.MaxPages = DefaultMaxPages
	}
	if s.MaxEmptyPages == 0 {
		s.MaxEmptyPages = DefaultMaxEmptyPages
	}
	if rs.MaxRetries != nil {
		s.MaxRetries = *rs.MaxRetries
	}

	s.MinDelay, s.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	switch len(rs.DelayRange) {
	case 0:
	case 2:
		var err error
		if s.MinDelay, err = parseDuration("delay_range[0]", rs.DelayRange[0], DefaultMinDelay); err != nil {
			return s, err
		}
		if s.MaxDelay, err = parseDuration("delay_range[1]", rs.DelayRange[1], DefaultMaxDelay); err != nil {
			return s, err
		}
	default:
		return s, fmt.Errorf("delay_range must have exactly two entries, got %d", len(rs.DelayRange))
	}

	var err error
	if s.BackoffBase, err = parseDuration("backoff_base", rs.BackoffBase, DefaultBackoffBase); err != nil {
		return s, err
	}
	if s.BackoffCap, err = parseDuration("backoff_cap", rs.BackoffCap, DefaultBackoffCap); err != nil {
		return s, err
	}
	return s, nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

var knownKinds = map[string]bool{
	adapter.KindHTML:       true,
	adapter.KindGreenhouse: true,
	adapter.KindLever:      true,
	adapter.KindAshby:      true,
	adapter.KindWorkday:    true,
	adapter.KindGem:        true,
}

func validate(cfg *Config) error {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency)
	}

	switch cfg.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or memory, got %q", cfg.Store.Driver)
	}

	switch cfg.Lock.Driver {
	case "local":
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required when driver is \"redis\"")
		}
	default:
		return fmt.Errorf("lock.driver must be local or redis, got %q", cfg.Lock.Driver)
	}

	enabled := 0
	seen := make(map[string]bool, len(cfg.Sites))
	for _, s := range cfg.Sites {
		if s.Name == "" {
			return fmt.Errorf("every site needs a name")
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return fmt.Errorf("duplicate site name %q", s.Name)
		}
		seen[key] = true

		if !knownKinds[s.Kind] {
			return fmt.Errorf("site %q: unknown kind %q", s.Name, s.Kind)
		}
		if s.MaxPages < 0 || s.MaxEmptyPages < 0 || s.MaxRetries < 0 {
			return fmt.Errorf("site %q: max_pages, max_empty_pages and max_retries must not be negative", s.Name)
		}
		if s.MinDelay < 0 || s.MinDelay > s.MaxDelay {
			return fmt.Errorf("site %q: delay_range min %v must be between 0 and max %v", s.Name, s.MinDelay, s.MaxDelay)
		}
		if s.BackoffBase <= 0 || s.BackoffBase > s.BackoffCap {
			return fmt.Errorf("site %q: backoff_base %v must be positive and not exceed backoff_cap %v", s.Name, s.BackoffBase, s.BackoffCap)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one site must be enabled")
	}

	if cfg.Cleanup.Retention < 0 {
		return fmt.Errorf("cleanup.retention must not be negative, got %v", cfg.Cleanup.Retention)
	}

	if cfg.Documents.Summarize.Enabled {
		if !cfg.Documents.Enabled {
			return fmt.Errorf("documents.summarize requires documents.enabled")
		}
		if cfg.Documents.Summarize.APIKey == "" {
			return fmt.Errorf("documents.summarize.api_key is required when summarize is enabled")
		}
		if cfg.Documents.Summarize.Model == "" {
			return fmt.Errorf("documents.summarize.model is required when summarize is enabled")
		}
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix)
		}
	default:
		return fmt.Errorf("notification.type must be log or slack, got %q", cfg.Notification.Type)
	}

	return nil
}
