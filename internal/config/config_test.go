package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWithMock(t *testing.T) {
	t.Setenv("COLLECTOR_MODE", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "5000" || cfg.HeartbeatInterval != 5*time.Second || cfg.RestartGrace != 500*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.PollBackoffBase != 5*time.Second || cfg.PollBackoffCap != time.Minute || cfg.RateLimitDefault != time.Minute {
		t.Fatalf("unexpected backoff defaults %+v", cfg)
	}
	if cfg.NotifyMaxVisible != 4 || cfg.NotifyDismissAfter != 5*time.Second {
		t.Fatalf("unexpected notify defaults %+v", cfg)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("unexpected level %v", cfg.Level())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COLLECTOR_MODE", "X")
	t.Setenv("X_BEARER_TOKEN", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("NOTIFY_MAX_VISIBLE", "6")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CollectorMode != "x" || cfg.XBearerToken != "secret" || cfg.Port != "8080" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.HeartbeatInterval != 2*time.Second || cfg.NotifyMaxVisible != 6 {
		t.Fatalf("typed env not applied: %+v", cfg)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level")
	}
	if opts := cfg.Collector(); opts.Mode != "x" || opts.XBearerToken != "secret" {
		t.Fatalf("unexpected collector options %+v", opts)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagstream.yaml")
	body := "collector_mode: mock\nport: \"7000\"\nrestart_grace: 1s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TAGSTREAM_CONFIG", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CollectorMode != "mock" || cfg.RestartGrace != time.Second {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.Port != "7001" {
		t.Fatalf("env must override file, got %q", cfg.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"x without token", map[string]string{"COLLECTOR_MODE": "x"}, "X_BEARER_TOKEN"},
		{"reddit without agent", map[string]string{"COLLECTOR_MODE": "reddit"}, "REDDIT_USER_AGENT"},
		{"unknown mode", map[string]string{"COLLECTOR_MODE": "fax"}, "COLLECTOR_MODE"},
		{"backoff inverted", map[string]string{"COLLECTOR_MODE": "mock", "POLL_BACKOFF_BASE": "2m"}, "POLL_BACKOFF_BASE"},
		{"bad level", map[string]string{"COLLECTOR_MODE": "mock", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"missing file", map[string]string{"COLLECTOR_MODE": "mock", "TAGSTREAM_CONFIG": "/nonexistent/tagstream.yaml"}, "read config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadViewerNeedsNoCredentials(t *testing.T) {
	t.Setenv("COLLECTOR_MODE", "x")
	t.Setenv("STREAM_URL", "ws://feed.example:5000/api/stream")

	cfg, err := LoadViewer()
	if err != nil {
		t.Fatalf("load viewer: %v", err)
	}
	if cfg.StreamURL != "ws://feed.example:5000/api/stream" {
		t.Fatalf("unexpected stream url %q", cfg.StreamURL)
	}
}
