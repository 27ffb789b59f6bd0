// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Site        SiteConfig        `mapstructure:"site"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Files       FilesConfig       `mapstructure:"files"`
	Output      OutputConfig      `mapstructure:"output"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Progress    ProgressConfig    `mapstructure:"progress"`
}

// CrawlerConfig governs the region walk and its pacing.
type CrawlerConfig struct {
	Regions             []crawler.Region `mapstructure:"regions"`
	StartRegion         int              `mapstructure:"start_region"`
	MaxAttempts         int              `mapstructure:"max_attempts"`
	PageDelayMinMs      int              `mapstructure:"page_delay_min_ms"`
	PageDelayMaxMs      int              `mapstructure:"page_delay_max_ms"`
	RecordDelayMinMs    int              `mapstructure:"record_delay_min_ms"`
	RecordDelayMaxMs    int              `mapstructure:"record_delay_max_ms"`
	CheckpointEvery     int              `mapstructure:"checkpoint_every"`
	MaxFallbackAdvances int              `mapstructure:"max_fallback_advances"`
	RequestsPerSecond   float64          `mapstructure:"requests_per_second"`
	Burst               int              `mapstructure:"burst"`
	// Seed fixes the PRNG used for delays and identity choice; 0 seeds from time.
	Seed uint64 `mapstructure:"seed"`
}

// SiteConfig describes the directory's URL layout and markup.
type SiteConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	FirstPageTemplate    string   `mapstructure:"first_page_template"`
	ContinuationTemplate string   `mapstructure:"continuation_template"`
	AlternateTemplate    string   `mapstructure:"alternate_template"`
	DetailTemplate       string   `mapstructure:"detail_template"`
	PageParam            string   `mapstructure:"page_param"`
	TokenParam           string   `mapstructure:"token_param"`
	DefaultToken         string   `mapstructure:"default_token"`
	PageSize             int      `mapstructure:"page_size"`
	FlakyPageIndex       int      `mapstructure:"flaky_page_index"`
	TotalPattern         string   `mapstructure:"total_pattern"`
	RecordIDPattern      string   `mapstructure:"record_id_pattern"`
	BlockMarkers         []string `mapstructure:"block_markers"`
	ListingRowSelector   string   `mapstructure:"listing_row_selector"`
	RecordLinkSelector   string   `mapstructure:"record_link_selector"`
	PaginationSelector   string   `mapstructure:"pagination_selector"`
	TotalSelector        string   `mapstructure:"total_selector"`
	DetailSelector       string   `mapstructure:"detail_selector"`
}

// HTTPConfig configures request timeouts and retry waits.
type HTTPConfig struct {
	TimeoutSeconds          int `mapstructure:"timeout_seconds"`
	RateLimitBackoffSeconds int `mapstructure:"rate_limit_backoff_seconds"`
	NetworkBackoffSeconds   int `mapstructure:"network_backoff_seconds"`
}

// IdentityConfig lists the rotating request identities.
type IdentityConfig struct {
	UserAgents []string          `mapstructure:"user_agents"`
	Headers    map[string]string `mapstructure:"headers"`
}

// FilesConfig locates the durable state files.
type FilesConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	BackupPath     string `mapstructure:"backup_path"`
	ProcessedPath  string `mapstructure:"processed_path"`
}

// OutputConfig controls the record table.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	PerRegion    bool   `mapstructure:"per_region"`
	CombinedName string `mapstructure:"combined_name"`
}

// DedupConfig optionally mirrors processed ids into Redis.
type DedupConfig struct {
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	RedisKey  string `mapstructure:"redis_key"`
}

// DiagnosticsConfig selects where blocked page evidence goes.
type DiagnosticsConfig struct {
	Backend  string `mapstructure:"backend"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// PostgresConfig enables the SQL mirror of parsed records.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig holds metadata for region-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// ProgressConfig toggles the terminal progress bar.
type ProgressConfig struct {
	Bar bool `mapstructure:"bar"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DIRCRAWL")
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
	if len(cfg.Crawler.Regions) == 0 {
		cfg.Crawler.Regions = DefaultRegions()
	}
	if len(cfg.Identity.UserAgents) == 0 {
		cfg.Identity.UserAgents = DefaultUserAgents()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.start_region", 0)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.page_delay_min_ms", 800)
	v.SetDefault("crawler.page_delay_max_ms", 2500)
	v.SetDefault("crawler.record_delay_min_ms", 300)
	v.SetDefault("crawler.record_delay_max_ms", 1000)
	v.SetDefault("crawler.checkpoint_every", 10)
	v.SetDefault("crawler.max_fallback_advances", 100)
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.seed", 0)

	v.SetDefault("site.base_url", "https://firmenregister.de")
	v.SetDefault("site.first_page_template",
		"register.php?cmd=search&stichwort=&firma=&branche=&vonplz=&ort=&strasse=&vorwahl=&bundesland={region}&Suchen=Suchen")
	v.SetDefault("site.continuation_template", "register.php?cmd=mysearch&fr={token}&auswahl=alle&ap={page}")
	v.SetDefault("site.alternate_template", "register.php?cmd=mysearch&auswahl=alle&ap={page}")
	v.SetDefault("site.detail_template", "register.php?cmd=anzeige&eid={id}")
	v.SetDefault("site.page_param", "ap")
	v.SetDefault("site.token_param", "fr")
	v.SetDefault("site.default_token", "Ojo6Ojo6Ojo6Ojo6Ojo6OjoOjo6Ojo6Ojo6")
	v.SetDefault("site.page_size", 10)
	v.SetDefault("site.flaky_page_index", 5)
	v.SetDefault("site.total_pattern", `(\d+)\s+(?:Einträge gefunden|entries found)`)
	v.SetDefault("site.record_id_pattern", `eid=(\d+)`)
	v.SetDefault("site.block_markers", []string{"captcha", "blocked", "rate limit"})
	v.SetDefault("site.listing_row_selector", `tr[valign="top"][bgcolor="#FFE8A9"]`)
	v.SetDefault("site.record_link_selector", `td a[href^="register.php?cmd=anzeige"]`)
	v.SetDefault("site.pagination_selector", `tr[bgcolor="#FFCC33"] a`)
	v.SetDefault("site.total_selector", "tr td.blue")
	v.SetDefault("site.detail_selector", "tbody")

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.rate_limit_backoff_seconds", 30)
	v.SetDefault("http.network_backoff_seconds", 5)

	v.SetDefault("files.checkpoint_path", "scraping_progress.json")
	v.SetDefault("files.backup_path", "scraping_progress.backup.json")
	v.SetDefault("files.processed_path", "processed_companies.json")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.per_region", true)
	v.SetDefault("output.combined_name", "all_companies.csv")

	v.SetDefault("dedup.redis_key", "directory-crawler:processed")

	v.SetDefault("diagnostics.backend", "local")
	v.SetDefault("diagnostics.dir", "blocked_pages")

	v.SetDefault("postgres.table", "directory_records")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("tracing.service_name", "directory-crawler")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Crawler.Regions) == 0 {
		return errors.New("crawler.regions must not be empty")
	}
	for i, region := range c.Crawler.Regions {
		if strings.TrimSpace(region.ID) == "" {
			return fmt.Errorf("crawler.regions[%d].id is required", i)
		}
	}
	if c.Crawler.StartRegion < 0 || c.Crawler.StartRegion >= len(c.Crawler.Regions) {
		return fmt.Errorf("crawler.start_region must be within [0, %d)", len(c.Crawler.Regions))
	}
	if c.Crawler.MaxAttempts <= 0 {
		return errors.New("crawler.max_attempts must be > 0")
	}
	if c.Crawler.PageDelayMaxMs < c.Crawler.PageDelayMinMs || c.Crawler.PageDelayMinMs < 0 {
		return errors.New("crawler.page_delay_max_ms must be >= page_delay_min_ms >= 0")
	}
	if c.Crawler.RecordDelayMaxMs < c.Crawler.RecordDelayMinMs || c.Crawler.RecordDelayMinMs < 0 {
		return errors.New("crawler.record_delay_max_ms must be >= record_delay_min_ms >= 0")
	}
	if c.Crawler.CheckpointEvery <= 0 {
		return errors.New("crawler.checkpoint_every must be > 0")
	}
	if c.Crawler.MaxFallbackAdvances < 0 {
		return errors.New("crawler.max_fallback_advances must be >= 0")
	}
	if strings.TrimSpace(c.Site.BaseURL) == "" {
		return errors.New("site.base_url is required")
	}
	if c.Site.PageSize <= 0 {
		return errors.New("site.page_size must be > 0")
	}
	for key, pattern := range map[string]string{
		"site.total_pattern":     c.Site.TotalPattern,
		"site.record_id_pattern": c.Site.RecordIDPattern,
	} {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.Files.CheckpointPath == "" || c.Files.BackupPath == "" || c.Files.ProcessedPath == "" {
		return errors.New("files.checkpoint_path, backup_path and processed_path are required")
	}
	if c.Files.CheckpointPath == c.Files.BackupPath {
		return errors.New("files.backup_path must differ from checkpoint_path")
	}
	if !c.Output.PerRegion && c.Output.CombinedName == "" {
		return errors.New("output.combined_name is required when per_region is false")
	}
	switch c.Diagnostics.Backend {
	case "local", "memory":
	case "gcs", "s3":
		if c.Diagnostics.Bucket == "" {
			return fmt.Errorf("diagnostics.bucket is required for backend %q", c.Diagnostics.Backend)
		}
	default:
		return fmt.Errorf("diagnostics.backend %q is not supported", c.Diagnostics.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PageDelay returns the randomized inter-page delay range.
func (c Config) PageDelay() crawler.DelayRange {
	return crawler.DelayRange{
		Min: time.Duration(c.Crawler.PageDelayMinMs) * time.Millisecond,
		Max: time.Duration(c.Crawler.PageDelayMaxMs) * time.Millisecond,
	}
}

// RecordDelay returns the randomized inter-record delay range.
func (c Config) RecordDelay() crawler.DelayRange {
	return crawler.DelayRange{
		Min: time.Duration(c.Crawler.RecordDelayMinMs) * time.Millisecond,
		Max: time.Duration(c.Crawler.RecordDelayMaxMs) * time.Millisecond,
	}
}

// Backoff returns the retry wait policy.
func (c Config) Backoff() crawler.BackoffPolicy {
	return crawler.NewBackoffPolicy(
		time.Duration(c.HTTP.RateLimitBackoffSeconds)*time.Second,
		time.Duration(c.HTTP.NetworkBackoffSeconds)*time.Second,
	)
}
