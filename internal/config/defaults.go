package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/template"
	"time"
)

const (
	DefaultMessageTemplate = "{{.Symbol}} **{{.Component.Name}}** is now *{{.Component.StatusName}}*"
	DefaultStorageDriver   = "file"
	DefaultStoragePath     = "./statusrelay.state.json"
	DefaultSchedule        = "1m"
	DefaultOpsAddr         = "127.0.0.1:9321"
	DefaultHTTPTimeout     = 10 * time.Second
)

// Environment overrides for secrets, so they can stay out of the config file.
const (
	EnvCachetToken   = "STATUSRELAY_CACHET_TOKEN"
	EnvWebhookURL    = "STATUSRELAY_WEBHOOK_URL"
	EnvTelegramToken = "STATUSRELAY_TELEGRAM_TOKEN"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// ApplyEnv copies secret overrides from the environment (lookup is usually os.LookupEnv).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvCachetToken); ok && strings.TrimSpace(v) != "" {
		c.Cachet.APIToken = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvWebhookURL); ok && strings.TrimSpace(v) != "" {
		c.Discord.WebhookURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTelegramToken); ok && strings.TrimSpace(v) != "" {
		c.Telegram.Token = strings.TrimSpace(v)
	}
}

// ApplyDefaults fills omitted optional fields.
func (c *Config) ApplyDefaults() {
	c.Cachet.APIURL = strings.TrimRight(strings.TrimSpace(c.Cachet.APIURL), "/")
	if strings.TrimSpace(c.Discord.MessageTemplate) == "" {
		c.Discord.MessageTemplate = DefaultMessageTemplate
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver != "redis" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(c.Storage.KeyPrefix) == "" {
		c.Storage.KeyPrefix = "statusrelay"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "warn"
	}
	if strings.TrimSpace(c.Daemon.Schedule) == "" {
		c.Daemon.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.Daemon.Ops.Addr) == "" {
		c.Daemon.Ops.Addr = DefaultOpsAddr
	}
}

// Validate checks preconditions that must hold before any network activity.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Cachet.APIURL == "" {
		add("cachet.api_url required")
	} else if err := checkHTTPURL(c.Cachet.APIURL); err != nil {
		add("cachet.api_url: %v", err)
	}
	if strings.TrimSpace(c.Cachet.APIToken) == "" {
		add("cachet.api_token required")
	}
	if c.Cachet.PerPage < 0 {
		add("cachet.per_page must be >= 0")
	}
	if _, err := ParseDurationField("cachet.timeout", c.Cachet.Timeout); err != nil {
		add("%v", err)
	}
	if tz := strings.TrimSpace(c.Cachet.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("cachet.timezone: %v", err)
		}
	}

	if strings.TrimSpace(c.Discord.WebhookURL) == "" {
		add("discord.webhook_url required")
	} else if err := checkHTTPURL(c.Discord.WebhookURL); err != nil {
		add("discord.webhook_url: %v", err)
	}
	if _, err := template.New("message").Parse(c.Discord.MessageTemplate); err != nil {
		add("discord.message_template: %v", err)
	}
	if c.Discord.RatePerSec < 0 {
		add("discord.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("discord.timeout", c.Discord.Timeout); err != nil {
		add("%v", err)
	}

	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add("telegram.token required when telegram.enabled")
		}
		if c.Telegram.ChatID == 0 {
			add("telegram.chat_id required when telegram.enabled")
		}
	}

	switch c.Storage.Driver {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path required for %s driver", c.Storage.Driver)
		}
	case "redis":
		if strings.TrimSpace(c.Storage.URL) == "" {
			add("storage.url required for redis driver")
		}
	default:
		add("unknown storage.driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		add("%v", err)
	}
	if _, err := ParseDurationField("daemon.run_timeout", c.Daemon.RunTimeout); err != nil {
		add("%v", err)
	}
	if tz := strings.TrimSpace(c.Daemon.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("daemon.timezone: %v", err)
		}
	}

	return errors.Join(errs...)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host required")
	}
	return nil
}
