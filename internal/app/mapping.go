package app

import (
	"fmt"
	"strings"
	"time"

	"statusrelay/internal/config"
	"statusrelay/internal/observability/ops"
	"statusrelay/internal/storage"
	"statusrelay/internal/telegram"
	logx "statusrelay/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	case "redis":
		return storage.Config{Driver: driver, URL: strings.TrimSpace(sc.URL), KeyPrefix: sc.KeyPrefix}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// MapLogConfig converts the logging section; debug forces the debug level.
func MapLogConfig(cfg *config.Config, debug bool) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	if debug {
		lc.Level = "debug"
		lc.Console = true
	}
	return lc
}

// MapOpsConfig converts daemon.ops into the ops server config.
func MapOpsConfig(cfg *config.Config) ops.Config {
	oc := cfg.Daemon.Ops
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   10 * time.Second,
		// profile/trace endpoints stream for up to 30s by default
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	tc := cfg.Telegram
	return telegram.Config{
		Token:    tc.Token,
		ChatID:   tc.ChatID,
		ThreadID: tc.ThreadID,
		APIURL:   tc.APIURL,
		Timeout:  cfg.DiscordTimeout(),
	}
}
