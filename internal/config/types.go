package config

// Config is the full statusrelay configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Cachet   CachetConfig   `json:"cachet"`
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Daemon   DaemonConfig   `json:"daemon,omitempty"`
}

// CachetConfig points at the status page API.
//
// Example:
//
//	cachet:
//	  api_url: https://status.example.com/api/v1
//	  api_token: xxxxxxxx
type CachetConfig struct {
	APIURL   string `json:"api_url"`
	APIToken string `json:"api_token"` // do not log
	// PerPage is passed as ?per_page=; 0 keeps the server default.
	PerPage int    `json:"per_page,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	// Timezone used to read Cachet's zone-less timestamps; default UTC.
	Timezone string `json:"timezone,omitempty"`
}

// DiscordConfig controls webhook delivery.
//
// MessageTemplate is a text/template; available fields are .Symbol and
// .Component (Name, Status, StatusName, Description, Link, ...).
type DiscordConfig struct {
	WebhookURL      string `json:"webhook_url"` // do not log (contains the webhook secret)
	MessageTemplate string `json:"message_template,omitempty"`
	Username        string `json:"username,omitempty"`
	// RatePerSec paces requests locally before the server limits kick in; 0 disables.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

// TelegramConfig mirrors each notification to a Telegram chat.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL overrides the Bot API endpoint (self-hosted bot API servers).
	APIURL string `json:"api_url,omitempty"`
}

// StorageConfig selects the snapshot store.
//
// Driver values:
//   - "file": JSON document at Path (default)
//   - "sqlite": SQLite database at Path
//   - "redis": Redis at URL, keys under KeyPrefix
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"` // redis://...; do not log (may embed a password)
	KeyPrefix   string `json:"key_prefix,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DaemonConfig is only read by `statusrelay daemon`.
type DaemonConfig struct {
	// Schedule accepts cron ("*/5 * * * *", "@every 1m"), a Go duration ("90s")
	// or HH:MM ("00:05"). Default "1m".
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// RunTimeout bounds a single relay run; "0s" disables.
	RunTimeout string `json:"run_timeout,omitempty"`
	// WatchConfig reloads the config file on change.
	WatchConfig bool      `json:"watch_config,omitempty"`
	Ops         OpsConfig `json:"ops,omitempty"`
}

// OpsConfig controls the operational HTTP server (/healthz, /metrics, /debug/pprof/).
//
// Security note: binding to a non-loopback address requires Token or AllowInsecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9321"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
