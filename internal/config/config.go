// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Browser BrowserConfig `mapstructure:"browser"`
	Extract ExtractConfig `mapstructure:"extract"`
	Score   ScoreConfig   `mapstructure:"score"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Sources SourcesConfig `mapstructure:"sources"`
	Sheet   SheetConfig   `mapstructure:"sheet"`
	Server  ServerConfig  `mapstructure:"server"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the Postgres stores.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// BrowserConfig configures the shared CDP browser session.
type BrowserConfig struct {
	CDPURL            string `mapstructure:"cdp_url"`
	ConnectTimeoutSec int    `mapstructure:"connect_timeout_seconds"`
	Retries           int    `mapstructure:"retries"`
	BackoffMs         int    `mapstructure:"backoff_ms"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	PollAttempts      int    `mapstructure:"poll_attempts"`
	PollIntervalMs    int    `mapstructure:"poll_interval_ms"`
	UserAgent         string `mapstructure:"user_agent"`
}

// ExtractConfig governs the text extraction engine.
type ExtractConfig struct {
	UserAgent       string   `mapstructure:"user_agent"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	MaxChars        int      `mapstructure:"max_chars"`
	MinTextChars    int      `mapstructure:"min_text_chars"`
	MaxJobs         int      `mapstructure:"max_jobs"`
	HTTPWorkers     int      `mapstructure:"http_workers"`
	DelayNormalSec  int      `mapstructure:"delay_normal_seconds"`
	DelayHeavySec   int      `mapstructure:"delay_heavy_seconds"`
	BrowserFirst    []string `mapstructure:"browser_first_hosts"`
	ProbeHosts      []string `mapstructure:"probe_hosts"`
	ProbeTimeoutSec int      `mapstructure:"probe_timeout_seconds"`
}

// ScoreConfig configures the local LLM scorer.
type ScoreConfig struct {
	OllamaURL      string `mapstructure:"ollama_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Retries        int    `mapstructure:"retries"`
	Concurrency    int    `mapstructure:"concurrency"`
	MaxJobs        int    `mapstructure:"max_jobs"`
}

// JobsConfig tunes identity-store behavior.
type JobsConfig struct {
	// PlaceholderTitles are extra garbage-title substrings healed on resight.
	PlaceholderTitles []string `mapstructure:"placeholder_titles"`
}

// SourcesConfig holds per-adapter settings.
type SourcesConfig struct {
	Enabled         []string `mapstructure:"enabled"`
	RemotiveAPIURL  string   `mapstructure:"remotive_api_url"`
	RemoteOKFeedURL string   `mapstructure:"remoteok_feed_url"`
	KeejobMaxPages  int      `mapstructure:"keejob_max_pages"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
}

// SheetConfig locates the review sheet file.
type SheetConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// NotifyConfig holds Pub/Sub settings for new-posting notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// WatchConfig schedules periodic pipeline runs.
type WatchConfig struct {
	CronSpec string `mapstructure:"cron_spec"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBRADAR")
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

const defaultUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("browser.connect_timeout_seconds", 45)
	v.SetDefault("browser.retries", 3)
	v.SetDefault("browser.backoff_ms", 800)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.poll_attempts", 20)
	v.SetDefault("browser.poll_interval_ms", 1000)
	v.SetDefault("browser.user_agent", defaultUA)
	v.SetDefault("extract.user_agent", defaultUA)
	v.SetDefault("extract.timeout_seconds", 20)
	v.SetDefault("extract.max_chars", 8000)
	v.SetDefault("extract.min_text_chars", 200)
	v.SetDefault("extract.max_jobs", 50)
	v.SetDefault("extract.http_workers", 2)
	v.SetDefault("extract.delay_normal_seconds", 10)
	v.SetDefault("extract.delay_heavy_seconds", 60)
	v.SetDefault("extract.browser_first_hosts", []string{"tanitjobs.com"})
	v.SetDefault("extract.probe_hosts", []string{"weworkremotely.com"})
	v.SetDefault("extract.probe_timeout_seconds", 4)
	v.SetDefault("score.ollama_url", "http://127.0.0.1:11434")
	v.SetDefault("score.model", "qwen2.5:7b-instruct")
	v.SetDefault("score.timeout_seconds", 90)
	v.SetDefault("score.retries", 1)
	v.SetDefault("score.concurrency", 2)
	v.SetDefault("score.max_jobs", 25)
	v.SetDefault("sources.enabled", []string{"keejob", "remotive", "remoteok"})
	v.SetDefault("sources.remotive_api_url", "https://remotive.com/api/remote-jobs")
	v.SetDefault("sources.remoteok_feed_url", "https://remoteok.com/remote-jobs.rss")
	v.SetDefault("sources.keejob_max_pages", 10)
	v.SetDefault("sources.timeout_seconds", 30)
	v.SetDefault("sheet.path", "jobs_sheet.csv")
	v.SetDefault("server.port", 8080)
	v.SetDefault("watch.cron_spec", "@every 6h")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Extract.TimeoutSeconds <= 0 {
		return fmt.Errorf("extract.timeout_seconds must be > 0")
	}
	if c.Extract.HTTPWorkers <= 0 {
		return fmt.Errorf("extract.http_workers must be > 0")
	}
	if c.Extract.MinTextChars <= 0 {
		return fmt.Errorf("extract.min_text_chars must be > 0")
	}
	if c.Score.Concurrency <= 0 {
		return fmt.Errorf("score.concurrency must be > 0")
	}
	if c.Browser.CDPURL != "" && c.Browser.Retries <= 0 {
		return fmt.Errorf("browser.retries must be > 0 when browser.cdp_url is set")
	}
	return nil
}

// ExtractTimeout converts the configured fetch timeout into a duration.
func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.Extract.TimeoutSeconds) * time.Second
}
