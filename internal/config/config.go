// Package config loads and validates audit configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig           `mapstructure:"server"`
	Auth    AuthConfig             `mapstructure:"auth"`
	Logging LoggingConfig          `mapstructure:"logging"`
	Crawler CrawlerConfig          `mapstructure:"crawler"`
	Links   LinksConfig            `mapstructure:"links"`
	Checks  map[string]CheckConfig `mapstructure:"checks"`
	AI      AIConfig               `mapstructure:"ai"`
	Report  ReportConfig           `mapstructure:"report"`
	Storage StorageConfig          `mapstructure:"storage"`
	DB      DBConfig               `mapstructure:"db"`
	PubSub  PubSubConfig           `mapstructure:"pubsub"`
	Queue   QueueConfig            `mapstructure:"queue"`
	Profile audit.Profile          `mapstructure:"profile"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs page discovery and fetching.
type CrawlerConfig struct {
	UserAgent       string   `mapstructure:"user_agent"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	MaxPages        int      `mapstructure:"max_pages"`
	MaxWorkers      int      `mapstructure:"max_workers"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	RatePerSecond   float64  `mapstructure:"rate_per_second"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
}

// LinksConfig tunes the link validator.
type LinksConfig struct {
	UserAgent       string   `mapstructure:"user_agent"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	ExternalDelayMs int      `mapstructure:"external_delay_ms"`
	SocialDomains   []string `mapstructure:"social_domains"`
}

// CheckConfig is one entry under checks.<name>_check.
type CheckConfig struct {
	Enabled      *bool  `mapstructure:"enabled"`
	Severity     string `mapstructure:"severity"`
	CorrectPhone string `mapstructure:"correct_phone"`
}

// AIConfig configures the hosted text analyzer.
type AIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	TextBudget     int    `mapstructure:"text_budget"`
}

// ReportConfig sets where rendered reports land.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// StorageConfig selects the blob backend for report artifacts.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	RunsTable    string `mapstructure:"runs_table"`
	ResultsTable string `mapstructure:"results_table"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// QueueConfig sizes the in-process run queue.
type QueueConfig struct {
	Depth   int `mapstructure:"depth"`
	Workers int `mapstructure:"workers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper applies defaults and env bindings to v and decodes it.
func FromViper(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.api_key", "AUDIT_AI_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind ai api key: %w", err)
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultSocialDomains lists hosts whose links are never probed.
var DefaultSocialDomains = []string{
	"instagram.com",
	"facebook.com",
	"twitter.com",
	"x.com",
	"youtube.com",
	"line.me",
	"tiktok.com",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.user_agent", "DentalCheckerBot/1.0")
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.max_pages", 20)
	v.SetDefault("crawler.max_workers", 5)
	v.SetDefault("crawler.exclude_patterns", []string{})
	v.SetDefault("crawler.rate_per_second", 2.0)
	v.SetDefault("crawler.username", "")
	v.SetDefault("crawler.password", "")
	v.SetDefault("links.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("links.timeout_seconds", 10)
	v.SetDefault("links.external_delay_ms", 1000)
	v.SetDefault("links.social_domains", DefaultSocialDomains)
	v.SetDefault("ai.model", "claude-sonnet-4-5")
	v.SetDefault("ai.max_tokens", 4000)
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.timeout_seconds", 120)
	v.SetDefault("ai.text_budget", 4000)
	v.SetDefault("report.output_dir", ".")
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "data/reports")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.runs_table", "audit_runs")
	v.SetDefault("db.results_table", "audit_results")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.workers", 2)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.MaxWorkers <= 0 {
		return fmt.Errorf("crawler.max_workers must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.RatePerSecond < 0 {
		return fmt.Errorf("crawler.rate_per_second must be >= 0")
	}
	for _, pattern := range c.Crawler.ExcludePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("crawler.exclude_patterns: invalid pattern %q: %w", pattern, err)
		}
	}
	if c.Links.ExternalDelayMs < 0 {
		return fmt.Errorf("links.external_delay_ms must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "", "none", "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Queue.Workers < 0 || c.Queue.Depth < 0 {
		return fmt.Errorf("queue.workers and queue.depth must be >= 0")
	}
	return nil
}

func checkKey(name string) string {
	return strings.ToLower(name) + "_check"
}

// CheckEnabled looks up checks.<name>_check.enabled, defaulting to true.
func (c Config) CheckEnabled(name string) bool {
	entry, ok := c.Checks[checkKey(name)]
	if !ok || entry.Enabled == nil {
		return true
	}
	return *entry.Enabled
}

// CheckSeverity looks up checks.<name>_check.severity, defaulting to medium.
func (c Config) CheckSeverity(name string) audit.Severity {
	return audit.ParseSeverity(c.Checks[checkKey(name)].Severity)
}

// CorrectPhone returns the reference phone number for the phone check.
func (c Config) CorrectPhone() string {
	return c.Checks[checkKey("phone")].CorrectPhone
}

// SiteAuth returns the Basic-Auth credential for the audited site, if configured.
func (c Config) SiteAuth() *audit.BasicAuth {
	auth := &audit.BasicAuth{Username: c.Crawler.Username, Password: c.Crawler.Password}
	if !auth.Usable() {
		return nil
	}
	return auth
}

// CrawlTimeout returns the per-request fetch timeout.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	cp := c
	cp.Crawler.ExcludePatterns = cloneStrings(c.Crawler.ExcludePatterns)
	cp.Links.SocialDomains = cloneStrings(c.Links.SocialDomains)
	if c.Checks != nil {
		cp.Checks = make(map[string]CheckConfig, len(c.Checks))
		for k, v := range c.Checks {
			if v.Enabled != nil {
				enabled := *v.Enabled
				v.Enabled = &enabled
			}
			cp.Checks[k] = v
		}
	}
	cp.Profile = c.Profile.Clone()
	return cp
}

// WithProfile derives a per-run copy with the profile's reference data applied.
// The receiver is left untouched.
func (c Config) WithProfile(p audit.Profile) Config {
	cp := c.Clone()
	merged := cp.Profile
	if p.StartURL != "" {
		merged.StartURL = p.StartURL
	}
	if p.ClinicName != "" {
		merged.ClinicName = p.ClinicName
	}
	if p.Phone != "" {
		merged.Phone = p.Phone
	}
	merged.NGRules = mergeRules(merged.NGRules, p.NGRules)
	if len(p.MasterData) > 0 && merged.MasterData == nil {
		merged.MasterData = make(map[string]string, len(p.MasterData))
	}
	for k, v := range p.MasterData {
		merged.MasterData[k] = v
	}
	cp.Profile = merged

	if merged.Phone != "" {
		if cp.Checks == nil {
			cp.Checks = make(map[string]CheckConfig)
		}
		entry := cp.Checks[checkKey("phone")]
		entry.CorrectPhone = merged.Phone
		cp.Checks[checkKey("phone")] = entry
	}
	return cp
}

func mergeRules(base, extra []audit.NGRule) []audit.NGRule {
	out := append([]audit.NGRule(nil), base...)
	seen := make(map[string]int, len(out))
	for i, r := range out {
		seen[r.Bad] = i
	}
	for _, r := range extra {
		if r.Bad == "" {
			continue
		}
		if i, ok := seen[r.Bad]; ok {
			out[i] = r
			continue
		}
		seen[r.Bad] = len(out)
		out = append(out, r)
	}
	return out
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
