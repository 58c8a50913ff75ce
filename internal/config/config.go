package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Subreddit string         `yaml:"subreddit"`
	Tracking  TrackingConfig `yaml:"tracking"`
	Reddit    RedditConfig   `yaml:"reddit"`
	Store     StoreConfig    `yaml:"store"`
}

// TrackingConfig configures the state machine.
type TrackingConfig struct {
	// TrackDays is the number of daily observation slots per post.
	TrackDays int `yaml:"track_days"`
	// FetchLimit is how many newest posts each poll fetches.
	FetchLimit int `yaml:"fetch_limit"`
	// StoreBody controls whether selftext is persisted.
	StoreBody    bool `yaml:"store_body"`
	BodyMaxChars int  `yaml:"body_max_chars"`
	// Timezone is the reference zone for calendar-day slot arithmetic.
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured reference time zone.
func (t TrackingConfig) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bad tracking.timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

// RedditConfig holds the script-app credentials.
type RedditConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserAgent    string `yaml:"user_agent"`
}

// StoreConfig selects and configures the tabular backend.
type StoreConfig struct {
	// Backend is "sheets" or "sqlite".
	Backend string       `yaml:"backend"`
	Sheets  SheetsConfig `yaml:"sheets"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// SheetsConfig for the Google Sheets backend.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Worksheet       string `yaml:"worksheet"`
	CredentialsFile string `yaml:"credentials_file"`
	CredentialsJSON string `yaml:"credentials_json"`
}

// SQLiteConfig for the local SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Tracking: TrackingConfig{
			TrackDays:    7,
			FetchLimit:   50,
			BodyMaxChars: 800,
			Timezone:     "UTC",
		},
		Store: StoreConfig{
			Backend: "sheets",
			Sheets:  SheetsConfig{Worksheet: "Sheet1"},
			SQLite:  SQLiteConfig{Path: "./subtrack.db"},
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate rejects a configuration that cannot reach its backends. Runs
// before any I/O.
func (c *Config) Validate() error {
	if c.Subreddit == "" {
		return fmt.Errorf("subreddit is required (set SUBREDDIT or subreddit in config)")
	}
	if c.Tracking.TrackDays < 1 {
		return fmt.Errorf("tracking.track_days must be at least 1, got %d", c.Tracking.TrackDays)
	}
	if c.Tracking.FetchLimit < 1 {
		return fmt.Errorf("tracking.fetch_limit must be at least 1, got %d", c.Tracking.FetchLimit)
	}
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit credentials are required (REDDIT_CLIENT_ID / REDDIT_CLIENT_SECRET)")
	}
	if c.Reddit.UserAgent == "" {
		return fmt.Errorf("reddit user agent is required (REDDIT_USER_AGENT)")
	}
	if _, err := c.Tracking.Location(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "sheets":
		if c.Store.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("store.sheets.spreadsheet_id is required (SPREADSHEET_ID)")
		}
		if c.Store.Sheets.CredentialsFile == "" && c.Store.Sheets.CredentialsJSON == "" {
			return fmt.Errorf("google service account credentials are required (GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON)")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	default:
		return fmt.Errorf("store.backend must be sheets or sqlite, got %q", c.Store.Backend)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables. The
// names match the original cron deployment's .env surface.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUBREDDIT"); v != "" {
		cfg.Subreddit = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Reddit.UserAgent = v
	}
	if v := os.Getenv("SPREADSHEET_ID"); v != "" {
		cfg.Store.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("WORKSHEET_NAME"); v != "" {
		cfg.Store.Sheets.Worksheet = v
	}
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"); v != "" {
		cfg.Store.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"); v != "" {
		cfg.Store.Sheets.CredentialsJSON = v
	}
	if v := os.Getenv("SUBTRACK_STORE"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SUBTRACK_DB_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v, ok := envInt("TRACK_DAYS"); ok {
		cfg.Tracking.TrackDays = v
	}
	if v, ok := envInt("POST_FETCH_LIMIT"); ok {
		cfg.Tracking.FetchLimit = v
	}
	if v, ok := envInt("BODY_MAX_CHARS"); ok {
		cfg.Tracking.BodyMaxChars = v
	}
	if v := os.Getenv("STORE_BODY"); v != "" {
		cfg.Tracking.StoreBody = envBool(v)
	}
	if v := os.Getenv("TRACK_TIMEZONE"); v != "" {
		cfg.Tracking.Timezone = v
	}
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
