package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
cachet:
  api_url: https://status.example.com/api/v1/
  api_token: secret-token
  per_page: 50
discord:
  webhook_url: https://discord.example.com/api/webhooks/1/abc
storage:
  driver: sqlite
  path: ./state.db
logging:
  level: debug
  console: true
daemon:
  schedule: "@every 30s"
`

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "relay.yaml", validYAML))
	m.SetEnv(noEnv)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cachet.APIURL != "https://status.example.com/api/v1" {
		t.Fatalf("api_url not normalized: %q", cfg.Cachet.APIURL)
	}
	if cfg.Discord.MessageTemplate != DefaultMessageTemplate {
		t.Fatalf("default template not applied: %q", cfg.Discord.MessageTemplate)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Daemon.Schedule != "@every 30s" {
		t.Fatalf("unexpected storage/daemon: %+v %+v", cfg.Storage, cfg.Daemon)
	}
	if cfg.Daemon.Ops.Addr != DefaultOpsAddr {
		t.Fatalf("ops addr default = %q", cfg.Daemon.Ops.Addr)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the config")
	}
}

func TestLoadJSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "relay.json", `{"cachet":{"api_url":"https://x","api_token":"t","bogus":1}}`))
	m.SetEnv(noEnv)
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadJSONRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "relay.json", `{} {}`))
	m.SetEnv(noEnv)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidateReportsMissingPreconditions(t *testing.T) {
	t.Parallel()
	cfg := &Config{Telegram: TelegramConfig{Enabled: true}}
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, want := range []string{
		"cachet.api_url required",
		"cachet.api_token required",
		"discord.webhook_url required",
		"telegram.token required",
		"telegram.chat_id required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "scheme", mutate: func(c *Config) { c.Cachet.APIURL = "ftp://status" }, want: "scheme"},
		{name: "template", mutate: func(c *Config) { c.Discord.MessageTemplate = "{{.Symbol" }, want: "message_template"},
		{name: "driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, want: "unknown storage.driver"},
		{name: "redis url", mutate: func(c *Config) { c.Storage.Driver = "redis" }, want: "storage.url required"},
		{name: "timeout", mutate: func(c *Config) { c.Discord.Timeout = "soon" }, want: "discord.timeout"},
		{name: "timezone", mutate: func(c *Config) { c.Cachet.Timezone = "Mars/Olympus" }, want: "cachet.timezone"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvCachetToken:   "from-env",
		EnvWebhookURL:    "https://discord.example.com/api/webhooks/2/env",
		EnvTelegramToken: "tg-env",
	}
	cfg := &Config{}
	cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if cfg.Cachet.APIToken != "from-env" || cfg.Discord.WebhookURL != env[EnvWebhookURL] || cfg.Telegram.Token != "tg-env" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if got := cfg.DiscordTimeout(); got != DefaultHTTPTimeout {
		t.Fatalf("DiscordTimeout() = %v", got)
	}
	cfg.Cachet.Timeout = "3s"
	if got := cfg.CachetTimeout(); got != 3*time.Second {
		t.Fatalf("CachetTimeout() = %v", got)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration should be rejected")
	}
	if cfg.CachetLocation() != time.UTC {
		t.Fatal("default location should be UTC")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := validConfig()
	b := validConfig()
	b.Cachet.APIToken = "rotated"
	b.Discord.WebhookURL = "https://discord.example.com/api/webhooks/9/new"

	changed, attrs := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "cachet,discord" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if c, _ := SummarizeConfigChange(a, validConfig()); len(c) != 0 {
		t.Fatalf("identical configs reported changes: %v", c)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	path := writeFile(t, "relay.yaml", validYAML)
	m := NewManager(path)
	m.SetEnv(noEnv)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validYAML, "@every 30s", "@every 45s", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Daemon.Schedule != "@every 45s" {
			t.Fatalf("published schedule = %q", cfg.Daemon.Schedule)
		}
	case <-ctx.Done():
		t.Fatal("no config published")
	}
}

func validConfig() *Config {
	cfg := &Config{
		Cachet:  CachetConfig{APIURL: "https://status.example.com/api/v1", APIToken: "t"},
		Discord: DiscordConfig{WebhookURL: "https://discord.example.com/api/webhooks/1/abc"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestReloadKeepsCurrentOnRejection(t *testing.T) {
	path := writeFile(t, "relay.yaml", validYAML)
	m := NewManager(path)
	m.SetEnv(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Daemon.Schedule == "@every 1s" {
			return errors.New("too often")
		}
		return nil
	})
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if err := os.WriteFile(path, []byte(strings.Replace(validYAML, "@every 30s", "@every 1s", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if m.Get().Daemon.Schedule != "@every 30s" {
		t.Fatalf("rejected config was committed: %q", m.Get().Daemon.Schedule)
	}

	if err := os.WriteFile(path, []byte("cachet: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		t.Fatalf("unexpected publish %+v", cfg.Daemon)
	default:
	}
}

func TestPublishKeepsLatestForSlowSubscriber(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	a, b := validConfig(), validConfig()
	b.Daemon.Schedule = "2m"
	m.publish(a)
	m.publish(b)
	if got := <-sub; got != b {
		t.Fatalf("got schedule %q, want latest", got.Daemon.Schedule)
	}
}
