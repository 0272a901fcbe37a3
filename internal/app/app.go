// Package app wires a validated config into a ready-to-run relay.
package app

import (
	"errors"
	"fmt"
	"net/http"

	"statusrelay/internal/cachet"
	"statusrelay/internal/config"
	"statusrelay/internal/discord"
	"statusrelay/internal/eventbus"
	"statusrelay/internal/relay"
	"statusrelay/internal/storage"
	"statusrelay/internal/telegram"
	logx "statusrelay/pkg/logx"
)

// Runtime is one relay plus the resources it owns.
type Runtime struct {
	Relay *relay.Relay
	Store storage.Store
	// Webhook is kept so its rate-limit state survives across daemon runs.
	Webhook *discord.Webhook
}

// Build opens storage and constructs the clients described by cfg.
// cfg must already be validated. The caller closes the returned Runtime.
func Build(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	client, err := cachet.NewClient(cfg.Cachet.APIURL, cfg.Cachet.APIToken,
		cachet.WithHTTPClient(&http.Client{Timeout: cfg.CachetTimeout()}),
		cachet.WithPerPage(cfg.Cachet.PerPage),
		cachet.WithLocation(cfg.CachetLocation()),
		cachet.WithLogger(log.With(logx.String("comp", "cachet"))),
	)
	if err != nil {
		return nil, err
	}

	hook, err := discord.NewWebhook(cfg.Discord.WebhookURL,
		discord.WithTimeout(cfg.DiscordTimeout()),
		discord.WithRate(cfg.Discord.RatePerSec),
		discord.WithUsername(cfg.Discord.Username),
		discord.WithLogger(log.With(logx.String("comp", "discord"))),
	)
	if err != nil {
		return nil, err
	}

	format, err := relay.NewFormatter(cfg.Discord.MessageTemplate)
	if err != nil {
		return nil, err
	}

	var mirrors []relay.Mirror
	if cfg.Telegram.Enabled {
		sink, err := telegram.New(mapTelegramConfig(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("telegram mirror: %w", err)
		}
		mirrors = append(mirrors, sink)
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	r, err := relay.New(relay.Deps{
		Lister:    client,
		Store:     store,
		Webhook:   hook,
		Formatter: format,
		Mirrors:   mirrors,
		Bus:       bus,
		Log:       log.With(logx.String("comp", "relay")),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Debug("relay built",
		logx.Endpoint("cachet", cfg.Cachet.APIURL),
		logx.Endpoint("webhook", cfg.Discord.WebhookURL),
		logx.String("storage", sc.Driver),
		logx.Int("mirrors", len(mirrors)),
		logx.Float64("rate_per_sec", cfg.Discord.RatePerSec),
	)
	return &Runtime{Relay: r, Store: store, Webhook: hook}, nil
}

func (rt *Runtime) Close() error {
	if rt == nil || rt.Store == nil {
		return nil
	}
	return rt.Store.Close()
}
