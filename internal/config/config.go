// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/storage/local"
)

// Config captures all service configuration knobs loaded via Viper. It is built
// once at startup and passed by value to constructors.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Health    HealthConfig    `mapstructure:"health"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Events    EventsConfig    `mapstructure:"events"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Daily     DailyConfig     `mapstructure:"dailycheck"`
	Pricing   map[string]any  `mapstructure:"pricing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the refresh trigger with an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs orchestrated runs.
type ScraperConfig struct {
	Concurrency          int    `mapstructure:"concurrency"`
	SourceTimeoutSeconds int    `mapstructure:"source_timeout_seconds"`
	HorizonDays          int    `mapstructure:"horizon_days"`
	Timezone             string `mapstructure:"timezone"`
	UserAgent            string `mapstructure:"user_agent"`
	SettleMs             int    `mapstructure:"settle_ms"`
}

// HTTPConfig configures the static page client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the shared browser.
type HeadlessConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	MaxParallel     int    `mapstructure:"max_parallel"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int    `mapstructure:"promotion_threshold"`
	ExecPath        string `mapstructure:"exec_path"`
}

// RateLimitConfig throttles navigations per host.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// HealthConfig holds the fixed alert threshold.
type HealthConfig struct {
	AlertThreshold int `mapstructure:"alert_threshold"`
}

// NotifyConfig configures the Chatwork webhook transport.
type NotifyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIToken       string `mapstructure:"api_token"`
	RoomID         string `mapstructure:"room_id"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Timezone       string `mapstructure:"timezone"`
	TitlePrefix    string `mapstructure:"title_prefix"`
}

// ChallengeConfig points at the anti-bot challenge solver.
type ChallengeConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ScheduleConfig controls runs the service starts on its own.
type ScheduleConfig struct {
	StartupRun      bool `mapstructure:"startup_run"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// ArtifactsConfig selects where failure HTML is written.
type ArtifactsConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   local.Config `mapstructure:"local"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-completed events and refresh requests.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// RefreshSubscription, when set, starts a run per received message.
	RefreshSubscription string `mapstructure:"refresh_subscription"`
}

// EventsConfig controls the run event hub.
type EventsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	LogEnabled     bool `mapstructure:"log_enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SourcesConfig selects which registered sources run.
type SourcesConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// DailyConfig points the daily check at a running service.
type DailyConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SAUNA")
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
	// Set after unmarshal: viper lowercases map keys and the table is camelCase.
	if len(cfg.Pricing) == 0 {
		cfg.Pricing = DefaultPricing()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scraper.concurrency", 1)
	v.SetDefault("scraper.source_timeout_seconds", 180)
	v.SetDefault("scraper.horizon_days", availability.DefaultHorizonDays)
	v.SetDefault("scraper.timezone", "Asia/Tokyo")
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.settle_ms", 2000)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 60)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.default_rps", 1.0)
	v.SetDefault("ratelimit.default_burst", 2)
	v.SetDefault("health.alert_threshold", 3)
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("pubsub.refresh_subscription", "")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.base_url", "https://api.chatwork.com")
	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("notify.timezone", "Asia/Tokyo")
	v.SetDefault("notify.title_prefix", "【サウナ空き状況チェッカー】")
	v.SetDefault("challenge.timeout_seconds", 60)
	v.SetDefault("schedule.startup_run", true)
	v.SetDefault("schedule.interval_minutes", 0)
	v.SetDefault("artifacts.backend", "memory")
	v.SetDefault("artifacts.prefix", "failures")
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.log_enabled", true)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.max_batch_events", 100)
	v.SetDefault("events.max_batch_wait_ms", 500)
	v.SetDefault("events.sink_timeout_ms", 10000)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "private-sauna-availability")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("sources.enabled", []string{"tenjin", "myaku", "yogan", "gflow"})
	v.SetDefault("dailycheck.base_url", "http://localhost:8080")
	v.SetDefault("dailycheck.timeout_seconds", 30)
}

// bindLegacyEnv accepts the variable names deployments already use alongside the SAUNA_ ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":         {"SAUNA_SERVER_PORT", "PORT"},
		"notify.enabled":      {"SAUNA_NOTIFY_ENABLED", "NOTIFICATION_ENABLED"},
		"notify.api_token":    {"SAUNA_NOTIFY_API_TOKEN", "CHATWORK_API_TOKEN"},
		"notify.room_id":      {"SAUNA_NOTIFY_ROOM_ID", "CHATWORK_ROOM_ID"},
		"challenge.url":       {"SAUNA_CHALLENGE_URL", "FLARESOLVERR_URL"},
		"pubsub.project_id":   {"SAUNA_PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
		"artifacts.bucket":    {"SAUNA_ARTIFACTS_BUCKET"},
		"headless.exec_path":  {"SAUNA_HEADLESS_EXEC_PATH", "CHROME_PATH"},
		"dailycheck.base_url": {"SAUNA_DAILYCHECK_BASE_URL", "PRODUCTION_URL"},
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
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Scraper.SourceTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.source_timeout_seconds must be > 0")
	}
	if c.Scraper.HorizonDays <= 0 {
		return fmt.Errorf("scraper.horizon_days must be > 0")
	}
	if _, err := time.LoadLocation(c.Scraper.Timezone); err != nil {
		return fmt.Errorf("scraper.timezone %q: %w", c.Scraper.Timezone, err)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Health.AlertThreshold <= 0 {
		return fmt.Errorf("health.alert_threshold must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Artifacts.Backend {
	case "", "none", "memory":
	case "local":
		if c.Artifacts.Local.BaseDir == "" {
			return fmt.Errorf("artifacts.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not one of none, memory, local, gcs", c.Artifacts.Backend)
	}
	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("sources.enabled must list at least one source")
	}
	return nil
}

// Degradations lists optional features disabled by missing external settings.
// They are reported at startup and never stop the process.
func (c Config) Degradations() []error {
	var out []error
	if c.Notify.Enabled {
		switch {
		case c.Notify.APIToken == "":
			out = append(out, &availability.ConfigurationError{Feature: "notifications", Reason: "notify.api_token is not set"})
		case c.Notify.RoomID == "":
			out = append(out, &availability.ConfigurationError{Feature: "notifications", Reason: "notify.room_id is not set"})
		}
	}
	if c.Challenge.URL == "" {
		out = append(out, &availability.ConfigurationError{
			Feature: "challenge solver",
			Reason:  "challenge.url is not set; guarded sources fetch directly",
		})
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		out = append(out, &availability.ConfigurationError{
			Feature: "pubsub events",
			Reason:  "pubsub.project_id and pubsub.topic_name must both be set",
		})
	}
	if c.PubSub.RefreshSubscription != "" && c.PubSub.ProjectID == "" {
		out = append(out, &availability.ConfigurationError{
			Feature: "pubsub refresh trigger",
			Reason:  "pubsub.refresh_subscription needs pubsub.project_id",
		})
	}
	return out
}

// Location returns the operator timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scraper.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SourceTimeout is the hard wall-clock budget for one adapter run.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Scraper.SourceTimeoutSeconds) * time.Second
}

// Settle is the pause adapters take after page interactions.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Scraper.SettleMs) * time.Millisecond
}

// ScheduleInterval is the periodic run interval, zero when disabled.
func (c Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// NotifyTimeout bounds one notification delivery.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// NotifyLocation is the timezone for notification timestamps, falling back to Location.
func (c Config) NotifyLocation() *time.Location {
	loc, err := time.LoadLocation(c.Notify.Timezone)
	if err != nil || c.Notify.Timezone == "" {
		return c.Location()
	}
	return loc
}

// ChallengeTimeout is how long the solver may spend clearing one challenge.
func (c Config) ChallengeTimeout() time.Duration {
	return time.Duration(c.Challenge.TimeoutSeconds) * time.Second
}

// DailyTimeout bounds each request the daily check makes.
func (c Config) DailyTimeout() time.Duration {
	return time.Duration(c.Daily.TimeoutSeconds) * time.Second
}
