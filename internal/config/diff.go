package config

import (
	"sort"
	"strings"

	logx "statusrelay/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// safe structured attrs for logging (never includes tokens or webhook URLs).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Cachet.APIURL != newCfg.Cachet.APIURL ||
		oldCfg.Cachet.APIToken != newCfg.Cachet.APIToken ||
		oldCfg.Cachet.PerPage != newCfg.Cachet.PerPage ||
		strings.TrimSpace(oldCfg.Cachet.Timeout) != strings.TrimSpace(newCfg.Cachet.Timeout) ||
		strings.TrimSpace(oldCfg.Cachet.Timezone) != strings.TrimSpace(newCfg.Cachet.Timezone) {
		changed = append(changed, "cachet")
		attrs = append(attrs,
			logx.String("cachet.api_url", newCfg.Cachet.APIURL),
			logx.Bool("cachet.token_changed", oldCfg.Cachet.APIToken != newCfg.Cachet.APIToken),
			logx.Int("cachet.per_page", newCfg.Cachet.PerPage),
		)
	}

	if oldCfg.Discord != newCfg.Discord {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.webhook_changed", oldCfg.Discord.WebhookURL != newCfg.Discord.WebhookURL),
			logx.Bool("discord.template_changed", oldCfg.Discord.MessageTemplate != newCfg.Discord.MessageTemplate),
			logx.Float64("discord.rate_per_sec", newCfg.Discord.RatePerSec),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	// Only presence flags for path/url: the redis URL may embed a password.
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.url_set", strings.TrimSpace(newCfg.Storage.URL) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Daemon != newCfg.Daemon {
		changed = append(changed, "daemon")
		attrs = append(attrs,
			logx.String("daemon.schedule", newCfg.Daemon.Schedule),
			logx.String("daemon.timezone", newCfg.Daemon.Timezone),
			logx.Bool("daemon.ops_enabled", newCfg.Daemon.Ops.Enabled),
			logx.Bool("daemon.ops_token_set", strings.TrimSpace(newCfg.Daemon.Ops.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
