package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalSite = `
sites:
  - name: ExampleBoard
    kind: html
    base_url: https://example.org
    search_url_template: "https://example.org/search?page={page}"
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
schedule: "@every 2h"
log_level: debug
concurrency: 2
store:
  driver: sqlite
  path: /tmp/jobs.db
fetch:
  timeout: 10s
  host_min_gap: 1s
  user_agents: [agent-a]
sites:
  - name: ExampleBoard
    kind: html
    base_url: https://example.org
    search_url_template: "https://example.org/search?page={page}"
    max_pages: 20
    delay_range: [3s, 8s]
    max_retries: 5
    backoff_base: 1s
    backoff_cap: 30s
    headers:
      Accept-Language: en-GB
    selectors:
      card: [".result"]
  - name: acme
    kind: greenhouse
    token: acme
    enabled: false
filters:
  title_keywords:
    - engineer
  locations:
    - Remote
cleanup:
  retention: 48h
  delete_vanished: true
documents:
  enabled: true
  out_dir: briefs
  summarize:
    enabled: true
    model: gpt-4o-mini
    api_key: sk-test
    timeout: 20s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule != "@every 2h" || cfg.Concurrency != 2 || cfg.Level() != slog.LevelDebug {
		t.Errorf("top level = %q %d %v", cfg.Schedule, cfg.Concurrency, cfg.Level())
	}
	if cfg.Store.Path != "/tmp/jobs.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Fetch.Timeout != 10*time.Second || cfg.Fetch.HostMinGap != time.Second || len(cfg.Fetch.UserAgents) != 1 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("Sites = %+v", cfg.Sites)
	}

	s := cfg.Sites[0]
	if !s.Enabled || s.MaxPages != 20 || s.MaxRetries != 5 {
		t.Errorf("site = %+v", s)
	}
	if s.MinDelay != 3*time.Second || s.MaxDelay != 8*time.Second {
		t.Errorf("delay range = %v..%v", s.MinDelay, s.MaxDelay)
	}
	if s.BackoffBase != time.Second || s.BackoffCap != 30*time.Second {
		t.Errorf("backoff = %v..%v", s.BackoffBase, s.BackoffCap)
	}
	if s.Headers["Accept-Language"] != "en-GB" {
		t.Errorf("Headers = %v", s.Headers)
	}
	if as := s.AdapterSite(); as.Kind != "html" || len(as.Selectors.Card) != 1 {
		t.Errorf("AdapterSite = %+v", as)
	}

	if enabled := cfg.EnabledSites(); len(enabled) != 1 || enabled[0].Name != "ExampleBoard" {
		t.Errorf("EnabledSites = %+v", enabled)
	}
	if _, ok := cfg.Site("exampleboard"); !ok {
		t.Error("Site lookup should be case-insensitive")
	}
	if cfg.Cleanup.Retention != 48*time.Hour || !cfg.Cleanup.DeleteVanished {
		t.Errorf("Cleanup = %+v", cfg.Cleanup)
	}
	if !cfg.Documents.Enabled || cfg.Documents.OutDir != "briefs" {
		t.Errorf("Documents = %+v", cfg.Documents)
	}
	if sum := cfg.Documents.Summarize; !sum.Enabled || sum.Model != "gpt-4o-mini" || sum.Timeout != 20*time.Second {
		t.Errorf("Summarize = %+v", sum)
	}
	if len(cfg.Filters.TitleKeywords) != 1 || cfg.Filters.TitleKeywords[0] != "engineer" {
		t.Errorf("TitleKeywords = %v", cfg.Filters.TitleKeywords)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalSite))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Schedule != "@every 6h" || cfg.Level() != slog.LevelInfo {
		t.Errorf("schedule %q, level %v", cfg.Schedule, cfg.Level())
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "jobs.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Lock.Driver != "local" || cfg.Lock.TTL != 30*time.Minute {
		t.Errorf("Lock = %+v", cfg.Lock)
	}
	if cfg.Notification.Type != "log" {
		t.Errorf("Notification.Type = %q", cfg.Notification.Type)
	}
	if cfg.Cleanup.Retention != DefaultRetention || cfg.Cleanup.DeleteVanished {
		t.Errorf("Cleanup = %+v", cfg.Cleanup)
	}

	s := cfg.Sites[0]
	if !s.Enabled {
		t.Error("sites are enabled unless disabled explicitly")
	}
	if s.MaxPages != DefaultMaxPages || s.MaxEmptyPages != DefaultMaxEmptyPages || s.MaxRetries != DefaultMaxRetries {
		t.Errorf("limits = %d %d %d", s.MaxPages, s.MaxEmptyPages, s.MaxRetries)
	}
	if s.MinDelay != DefaultMinDelay || s.MaxDelay != DefaultMaxDelay {
		t.Errorf("delay range = %v..%v", s.MinDelay, s.MaxDelay)
	}
	if s.BackoffBase != DefaultBackoffBase || s.BackoffCap != DefaultBackoffCap {
		t.Errorf("backoff = %v..%v", s.BackoffBase, s.BackoffCap)
	}
}

func TestLoad_ZeroRetriesIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalSite+"    max_retries: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sites[0].MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.Sites[0].MaxRetries)
	}
}

func TestLoad_ExpandsEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JOBHARVEST_TEST_HOOK=https://hooks.slack.com/services/T/B/X\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("JOBHARVEST_TEST_HOOK") })
	t.Setenv("JOBHARVEST_TEST_DSN", "postgres://u:p@localhost/jobs")

	path := filepath.Join(dir, "config.yaml")
	content := minimalSite + `
store:
  driver: postgres
  dsn: ${JOBHARVEST_TEST_DSN}
notification:
  type: slack
  webhook_url: ${JOBHARVEST_TEST_HOOK}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.DSN != "postgres://u:p@localhost/jobs" {
		t.Errorf("DSN = %q", cfg.Store.DSN)
	}
	if cfg.Notification.WebhookURL != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("WebhookURL = %q", cfg.Notification.WebhookURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "sites: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no enabled sites",
			content: "sites:\n  - name: a\n    kind: greenhouse\n    enabled: false\n",
			wantErr: "at least one site must be enabled",
		},
		{
			name:    "duplicate names",
			content: "sites:\n  - name: a\n    kind: lever\n  - name: A\n    kind: lever\n",
			wantErr: "duplicate site name",
		},
		{
			name:    "unknown kind",
			content: "sites:\n  - name: a\n    kind: gopher\n",
			wantErr: "unknown kind",
		},
		{
			name:    "inverted delay range",
			content: "sites:\n  - name: a\n    delay_range: [9s, 1s]\n",
			wantErr: "delay_range",
		},
		{
			name:    "delay range needs two entries",
			content: "sites:\n  - name: a\n    delay_range: [1s]\n",
			wantErr: "exactly two entries",
		},
		{
			name:    "backoff base above cap",
			content: "sites:\n  - name: a\n    backoff_base: 2m\n    backoff_cap: 1m\n",
			wantErr: "backoff_base",
		},
		{
			name:    "bad duration",
			content: "sites:\n  - name: a\n    backoff_cap: soon\n",
			wantErr: "backoff_cap",
		},
		{
			name:    "bad schedule",
			content: "schedule: whenever\n" + minimalSite,
			wantErr: "schedule",
		},
		{
			name:    "postgres without dsn",
			content: "store:\n  driver: postgres\n" + minimalSite,
			wantErr: "store.dsn",
		},
		{
			name:    "redis lock without url",
			content: "lock:\n  driver: redis\n" + minimalSite,
			wantErr: "lock.redis_url",
		},
		{
			name:    "summarize without documents",
			content: "documents:\n  summarize:\n    enabled: true\n    model: m\n    api_key: k\n" + minimalSite,
			wantErr: "requires documents.enabled",
		},
		{
			name:    "summarize without api key",
			content: "documents:\n  enabled: true\n  summarize:\n    enabled: true\n    model: m\n" + minimalSite,
			wantErr: "summarize.api_key",
		},
		{
			name:    "slack without webhook",
			content: "notification:\n  type: slack\n" + minimalSite,
			wantErr: "webhook_url is required",
		},
		{
			name:    "slack webhook on wrong host",
			content: "notification:\n  type: slack\n  webhook_url: https://example.org/hook\n" + minimalSite,
			wantErr: "must start with",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("Load: expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("ResolvePath() = %q, want %q", got, DefaultPath)
	}

	t.Setenv(EnvConfigPath, "/etc/jobharvest.yaml")
	if got := ResolvePath(""); got != "/etc/jobharvest.yaml" {
		t.Errorf("env path = %q", got)
	}
	if got := ResolvePath("./mine.yaml"); got != "./mine.yaml" {
		t.Errorf("flag path = %q", got)
	}
}
