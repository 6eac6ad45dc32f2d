package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scraper:
  concurrency: 3
  source_timeout_seconds: 90
  horizon_days: 5
  timezone: UTC
headless:
  enabled: false
notify:
  enabled: true
  api_token: token
  room_id: "42"
challenge:
  url: http://solver:8191/v1
artifacts:
  backend: local
  local:
    base_dir: /tmp/failures
sources:
  enabled: ["tenjin", "gflow"]
pricing:
  tenjin:
    standard: 2090
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scraper.Concurrency != 3 || cfg.Scraper.HorizonDays != 5 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if got := cfg.SourceTimeout(); got != 90*time.Second {
		t.Fatalf("expected source timeout 90s, got %v", got)
	}
	if cfg.Headless.Enabled {
		t.Fatalf("expected headless disabled")
	}
	if cfg.Artifacts.Local.BaseDir != "/tmp/failures" {
		t.Fatalf("expected local base dir, got %q", cfg.Artifacts.Local.BaseDir)
	}
	if len(cfg.Sources.Enabled) != 2 || cfg.Sources.Enabled[1] != "gflow" {
		t.Fatalf("expected enabled sources, got %v", cfg.Sources.Enabled)
	}
	if _, ok := cfg.Pricing["tenjin"]; !ok {
		t.Fatalf("expected pricing table to load: %+v", cfg.Pricing)
	}
	if _, ok := cfg.Pricing["kudochi"]; ok {
		t.Fatalf("expected file pricing to replace the default table: %+v", cfg.Pricing)
	}
	if got := cfg.Location(); got != time.UTC {
		t.Fatalf("expected UTC location, got %v", got)
	}
	if d := cfg.Degradations(); len(d) != 0 {
		t.Fatalf("expected no degradations, got %v", d)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Concurrency != 1 {
		t.Fatalf("expected sequential runs by default, got %d", cfg.Scraper.Concurrency)
	}
	if cfg.Scraper.HorizonDays != availability.DefaultHorizonDays {
		t.Fatalf("expected %d day horizon, got %d", availability.DefaultHorizonDays, cfg.Scraper.HorizonDays)
	}
	if cfg.Health.AlertThreshold != 3 {
		t.Fatalf("expected threshold 3, got %d", cfg.Health.AlertThreshold)
	}
	if cfg.Location().String() != "Asia/Tokyo" {
		t.Fatalf("expected Asia/Tokyo, got %s", cfg.Location())
	}
	if len(cfg.Sources.Enabled) != 4 {
		t.Fatalf("expected four default sources, got %v", cfg.Sources.Enabled)
	}
	if !cfg.Schedule.StartupRun {
		t.Fatalf("expected startup run enabled")
	}
	if cfg.ScheduleInterval() != 0 {
		t.Fatalf("expected periodic schedule off, got %v", cfg.ScheduleInterval())
	}
	if cfg.Daily.BaseURL != "http://localhost:8080" {
		t.Fatalf("expected local daily check target, got %q", cfg.Daily.BaseURL)
	}
	if got := cfg.ChallengeTimeout(); got != 60*time.Second {
		t.Fatalf("expected 60s challenge timeout, got %v", got)
	}
	for _, key := range []string{"base", "kudochi", "saunaOoo", "giraffeMiamitenjin", "giraffeTenjin", "sakurado"} {
		if _, ok := cfg.Pricing[key]; !ok {
			t.Fatalf("expected default pricing for %s, got keys %v", key, cfg.Pricing)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SAUNA_SCRAPER_CONCURRENCY", "4")
	t.Setenv("CHATWORK_API_TOKEN", "legacy-token")
	t.Setenv("FLARESOLVERR_URL", "http://flaresolverr:8191/v1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.Concurrency != 4 {
		t.Fatalf("expected env concurrency 4, got %d", cfg.Scraper.Concurrency)
	}
	if cfg.Notify.APIToken != "legacy-token" {
		t.Fatalf("expected legacy token binding, got %q", cfg.Notify.APIToken)
	}
	if cfg.Challenge.URL != "http://flaresolverr:8191/v1" {
		t.Fatalf("expected legacy solver binding, got %q", cfg.Challenge.URL)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero concurrency", mutate: func(c *Config) { c.Scraper.Concurrency = 0 }},
		{name: "bad timezone", mutate: func(c *Config) { c.Scraper.Timezone = "Mars/Olympus" }},
		{name: "zero threshold", mutate: func(c *Config) { c.Health.AlertThreshold = 0 }},
		{name: "auth without key", mutate: func(c *Config) { c.Auth.Enabled = true }},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Artifacts.Backend = "gcs" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Artifacts.Backend = "s3" }},
		{name: "no sources", mutate: func(c *Config) { c.Sources.Enabled = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDegradations(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Notify:    NotifyConfig{Enabled: true, RoomID: "1"},
		PubSub:    PubSubConfig{ProjectID: "proj"},
		Challenge: ChallengeConfig{},
	}
	got := cfg.Degradations()
	if len(got) != 3 {
		t.Fatalf("expected 3 degradations, got %v", got)
	}
	cfg.PubSub = PubSubConfig{RefreshSubscription: "refresh"}
	if n := len(cfg.Degradations()); n != 3 {
		t.Fatalf("expected subscription without project to degrade, got %d", n)
	}
	for _, err := range got {
		var ce *availability.ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigurationError, got %T", err)
		}
	}
}

func TestNotifyLocationFallsBack(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Scraper: ScraperConfig{Timezone: "Asia/Tokyo"},
		Notify:  NotifyConfig{Timezone: "UTC", TimeoutSeconds: 10},
	}
	if cfg.NotifyLocation().String() != "UTC" {
		t.Fatalf("expected UTC, got %s", cfg.NotifyLocation())
	}
	if cfg.NotifyTimeout() != 10*time.Second {
		t.Fatalf("expected 10s, got %v", cfg.NotifyTimeout())
	}

	cfg.Notify.Timezone = "Not/AZone"
	if cfg.NotifyLocation().String() != "Asia/Tokyo" {
		t.Fatalf("expected scraper timezone fallback, got %s", cfg.NotifyLocation())
	}
	cfg.Notify.Timezone = ""
	if cfg.NotifyLocation().String() != "Asia/Tokyo" {
		t.Fatalf("expected scraper timezone fallback for empty zone, got %s", cfg.NotifyLocation())
	}
}
