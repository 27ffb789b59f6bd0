package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Crawler.Regions) != 16 {
		t.Fatalf("expected 16 default regions, got %d", len(cfg.Crawler.Regions))
	}
	if cfg.Crawler.Regions[0].ID != "Baden-W%FCrttemberg" {
		t.Fatalf("unexpected first region %+v", cfg.Crawler.Regions[0])
	}
	if len(cfg.Identity.UserAgents) != 9 {
		t.Fatalf("expected 9 default user agents, got %d", len(cfg.Identity.UserAgents))
	}
	if cfg.Site.PageSize != 10 || cfg.Site.FlakyPageIndex != 5 {
		t.Fatalf("unexpected site defaults: %+v", cfg.Site)
	}
	if got := cfg.Timeout(); got != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", got)
	}
	if got := cfg.PageDelay(); got.Min != 800*time.Millisecond || got.Max != 2500*time.Millisecond {
		t.Fatalf("unexpected page delay %+v", got)
	}
	if got := cfg.Backoff(); got.RateLimitStep != 30*time.Second || got.NetworkStep != 5*time.Second {
		t.Fatalf("unexpected backoff %+v", got)
	}
	if cfg.Files.CheckpointPath != "scraping_progress.json" {
		t.Fatalf("unexpected checkpoint path %q", cfg.Files.CheckpointPath)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  regions:
    - id: Berlin
      display_name: berlin
      token: berlin-token
    - id: Bremen
      display_name: bremen
  start_region: 1
  max_attempts: 5
  checkpoint_every: 20
site:
  base_url: http://localhost:9999
  page_size: 25
http:
  timeout_seconds: 45
identity:
  user_agents: ["agent-a", "agent-b"]
  headers:
    accept-language: en-US
output:
  per_region: false
  combined_name: everything.csv
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Crawler.Regions) != 2 || cfg.Crawler.Regions[0].Token != "berlin-token" {
		t.Fatalf("expected regions override, got %+v", cfg.Crawler.Regions)
	}
	if cfg.Crawler.StartRegion != 1 || cfg.Crawler.MaxAttempts != 5 || cfg.Crawler.CheckpointEvery != 20 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Site.PageSize != 25 || cfg.Site.BaseURL != "http://localhost:9999" {
		t.Fatalf("expected site overrides: %+v", cfg.Site)
	}
	if cfg.Site.PageParam != "ap" {
		t.Fatalf("expected untouched defaults to survive, got %q", cfg.Site.PageParam)
	}
	if len(cfg.Identity.UserAgents) != 2 || cfg.Identity.Headers["accept-language"] != "en-US" {
		t.Fatalf("expected identity overrides: %+v", cfg.Identity)
	}
	if cfg.Output.PerRegion || cfg.Output.CombinedName != "everything.csv" {
		t.Fatalf("expected output overrides: %+v", cfg.Output)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DIRCRAWL_HTTP_TIMEOUT_SECONDS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.TimeoutSeconds != 7 {
		t.Fatalf("expected env override, got %d", cfg.HTTP.TimeoutSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := map[string]func(*Config){
		"max_attempts":  func(c *Config) { c.Crawler.MaxAttempts = 0 },
		"start_region":  func(c *Config) { c.Crawler.StartRegion = 99 },
		"page_delay":    func(c *Config) { c.Crawler.PageDelayMaxMs = 1 },
		"page_size":     func(c *Config) { c.Site.PageSize = 0 },
		"total_pattern": func(c *Config) { c.Site.TotalPattern = "(" },
		"backup_path":   func(c *Config) { c.Files.BackupPath = c.Files.CheckpointPath },
		"diagnostics":   func(c *Config) { c.Diagnostics.Backend = "ftp" },
		"bucket":        func(c *Config) { c.Diagnostics.Backend = "gcs" },
		"pubsub":        func(c *Config) { c.PubSub.TopicName = "regions" },
		"region_id":     func(c *Config) { c.Crawler.Regions[0].ID = " " },
	}
	for name, mutate := range cases {
		cfg := base
		cfg.Crawler.Regions = append(cfg.Crawler.Regions[:0:0], base.Crawler.Regions...)
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else if strings.TrimSpace(err.Error()) == "" {
			t.Fatalf("%s: expected descriptive error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
