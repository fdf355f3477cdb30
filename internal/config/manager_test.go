package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `telegram:
  tokens:
    - "123:alpha"
    - "456:beta"
  admin_ids: [42]
  poll_timeout: "10s"
logging:
  level: debug
  console: true
storage:
  path: ./data/bot.db
  busy_timeout: "5s"
delivery:
  product:
    max_per_hour: 4
    batch_size: 8
    batch_delay: "2s"
  custom:
    max_per_hour: 2
  stagger_group_size: 12
  stagger_interval: "7s"
  page_size: 50
  retry_schedule: "*/5 * * * *"
  excluded_categories: ["internal"]
translate:
  enabled: true
  endpoint: "http://localhost:5000"
  timeout: "3s"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Telegram.Tokens) != 2 || cfg.Telegram.Tokens[0] != "123:alpha" {
		t.Fatalf("tokens = %v", cfg.Telegram.Tokens)
	}
	if len(cfg.Telegram.AdminIDs) != 1 || cfg.Telegram.AdminIDs[0] != 42 {
		t.Fatalf("admin_ids = %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Storage.Path != "./data/bot.db" {
		t.Fatalf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Delivery.Product.MaxPerHour != 4 || cfg.Delivery.Product.BatchSize != 8 {
		t.Fatalf("product tuning = %+v", cfg.Delivery.Product)
	}
	if cfg.Delivery.StaggerGroupSize != 12 || cfg.Delivery.StaggerInterval != "7s" {
		t.Fatalf("stagger = %d/%s", cfg.Delivery.StaggerGroupSize, cfg.Delivery.StaggerInterval)
	}
	if cfg.Delivery.RetrySchedule != "*/5 * * * *" {
		t.Fatalf("retry_schedule = %q", cfg.Delivery.RetrySchedule)
	}
	if !cfg.Translate.Enabled || cfg.Translate.Endpoint != "http://localhost:5000" {
		t.Fatalf("translate = %+v", cfg.Translate)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", `{
  "telegram": {"tokens": ["123:alpha"]},
  "logging": {"level": "info"},
  "storage": {"path": "bot.db"},
  "delivery": {"product": {}, "custom": {}}
}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Path != "bot.db" {
		t.Fatalf("storage.path = %q", cfg.Storage.Path)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", `telegram:
  tokens: ["123:alpha"]
  tokenz: ["typo"]
storage:
  path: bot.db
`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown field should be rejected")
	}
}

func TestParseValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"no tokens",
			"telegram:\n  tokens: []\nstorage:\n  path: bot.db\n",
			"telegram.tokens",
		},
		{
			"blank token",
			"telegram:\n  tokens: [\"  \"]\nstorage:\n  path: bot.db\n",
			"empty token",
		},
		{
			"missing storage path",
			"telegram:\n  tokens: [\"123:alpha\"]\n",
			"storage.path",
		},
		{
			"bad duration",
			"telegram:\n  tokens: [\"123:alpha\"]\nstorage:\n  path: bot.db\ndelivery:\n  stagger_interval: \"ten seconds\"\n",
			"stagger_interval",
		},
		{
			"negative duration",
			"telegram:\n  tokens: [\"123:alpha\"]\nstorage:\n  path: bot.db\ndelivery:\n  page_pause: \"-2s\"\n",
			"page_pause",
		},
		{
			"negative stagger group size",
			"telegram:\n  tokens: [\"123:alpha\"]\nstorage:\n  path: bot.db\ndelivery:\n  stagger_group_size: -1\n",
			"stagger_group_size",
		},
		{
			"negative batch size",
			"telegram:\n  tokens: [\"123:alpha\"]\nstorage:\n  path: bot.db\ndelivery:\n  product:\n    batch_size: -10\n",
			"product.batch_size",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := NewManager(writeConfig(t, "config.yaml", tc.content))
			_, err := m.Parse()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadCommitsAndGetReturnsIt(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the loaded config")
	}
}

func TestWatchReloadsAndKeepsLastGood(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to install before the first write.
	time.Sleep(200 * time.Millisecond)

	updated := strings.Replace(validYAML, "page_size: 50", "page_size: 75", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Delivery.PageSize != 75 {
			t.Fatalf("page_size = %d, want 75", cfg.Delivery.PageSize)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published after a config write")
	}

	// A broken edit is rejected and the committed config stays intact.
	if err := os.WriteFile(path, []byte("telegram: ["), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(time.Second)
	select {
	case cfg := <-sub:
		t.Fatalf("broken config was published: %+v", cfg)
	default:
	}
	if got := m.Get(); got == nil || got.Delivery.PageSize != 75 {
		t.Fatal("broken edit must keep the last good config")
	}

	cancel()
	<-done
}
