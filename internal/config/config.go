// Package config loads process configuration from defaults, an optional
// YAML file and the environment, in increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/qepting91/tagstream/internal/collector"
)

type Config struct {
	Port          string `mapstructure:"port"`
	CollectorMode string `mapstructure:"collector_mode"`

	XBearerToken string `mapstructure:"x_bearer_token"`
	XAPIBaseURL  string `mapstructure:"x_api_base_url"`

	RedditClientID     string `mapstructure:"reddit_client_id"`
	RedditClientSecret string `mapstructure:"reddit_client_secret"`
	RedditUsername     string `mapstructure:"reddit_username"`
	RedditPassword     string `mapstructure:"reddit_password"`
	RedditUserAgent    string `mapstructure:"reddit_user_agent"`

	DatabaseURL  string `mapstructure:"database_url"`
	SettingsPath string `mapstructure:"settings_path"`
	HashtagsPath string `mapstructure:"hashtags_path"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RestartGrace      time.Duration `mapstructure:"restart_grace"`
	PollBackoffBase   time.Duration `mapstructure:"poll_backoff_base"`
	PollBackoffCap    time.Duration `mapstructure:"poll_backoff_cap"`
	RateLimitDefault  time.Duration `mapstructure:"rate_limit_default"`

	StreamURL          string        `mapstructure:"stream_url"`
	NotifyMaxVisible   int           `mapstructure:"notify_max_visible"`
	NotifyDismissAfter time.Duration `mapstructure:"notify_dismiss_after"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"port":                 "5000",
	"collector_mode":       "x",
	"x_bearer_token":       "",
	"x_api_base_url":       collector.DefaultXBaseURL,
	"reddit_client_id":     "",
	"reddit_client_secret": "",
	"reddit_username":      "",
	"reddit_password":      "",
	"reddit_user_agent":    "",
	"database_url":         "",
	"settings_path":        "data/settings.yaml",
	"hashtags_path":        "",
	"heartbeat_interval":   5 * time.Second,
	"restart_grace":        500 * time.Millisecond,
	"poll_backoff_base":    5 * time.Second,
	"poll_backoff_cap":     60 * time.Second,
	"rate_limit_default":   60 * time.Second,
	"stream_url":           "ws://localhost:5000/api/stream",
	"notify_max_visible":   4,
	"notify_dismiss_after": 5 * time.Second,
	"log_level":            "info",
}

// Load builds the Config. The YAML file named by TAGSTREAM_CONFIG is read
// when set; environment variables override it.
func Load() (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("tagstream_config")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CollectorMode = strings.ToLower(strings.TrimSpace(cfg.CollectorMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CollectorMode {
	case "x":
		if strings.TrimSpace(c.XBearerToken) == "" {
			return fmt.Errorf("X_BEARER_TOKEN is required when COLLECTOR_MODE=x")
		}
	case "reddit":
		if c.RedditUserAgent == "" {
			return fmt.Errorf("REDDIT_USER_AGENT is required when COLLECTOR_MODE=reddit")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown COLLECTOR_MODE %q (use 'x', 'reddit', or 'mock')", c.CollectorMode)
	}

	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}
	if c.RestartGrace <= 0 {
		return fmt.Errorf("RESTART_GRACE must be positive")
	}
	if c.PollBackoffBase <= 0 || c.PollBackoffCap < c.PollBackoffBase {
		return fmt.Errorf("POLL_BACKOFF_BASE must be positive and not above POLL_BACKOFF_CAP")
	}
	if c.RateLimitDefault <= 0 {
		return fmt.Errorf("RATE_LIMIT_DEFAULT must be positive")
	}
	if c.NotifyMaxVisible <= 0 {
		return fmt.Errorf("NOTIFY_MAX_VISIBLE must be positive")
	}
	if c.NotifyDismissAfter <= 0 {
		return fmt.Errorf("NOTIFY_DISMISS_AFTER must be positive")
	}
	if _, ok := levels[c.LogLevel]; !ok {
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	return levels[c.LogLevel]
}

// Collector returns the upstream options for the configured mode.
func (c Config) Collector() collector.Options {
	return collector.Options{
		Mode:               c.CollectorMode,
		XBearerToken:       c.XBearerToken,
		XBaseURL:           c.XAPIBaseURL,
		RedditClientID:     c.RedditClientID,
		RedditClientSecret: c.RedditClientSecret,
		RedditUsername:     c.RedditUsername,
		RedditPassword:     c.RedditPassword,
		RedditUserAgent:    c.RedditUserAgent,
	}
}

// LoadViewer reads only what the terminal viewer needs, so it runs without
// upstream credentials.
func LoadViewer() (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.StreamURL == "" {
		return Config{}, fmt.Errorf("STREAM_URL is required")
	}
	if cfg.NotifyMaxVisible <= 0 || cfg.NotifyDismissAfter <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_MAX_VISIBLE and NOTIFY_DISMISS_AFTER must be positive")
	}
	if _, ok := levels[cfg.LogLevel]; !ok {
		return Config{}, fmt.Errorf("unknown LOG_LEVEL %q", cfg.LogLevel)
	}
	return cfg, nil
}
