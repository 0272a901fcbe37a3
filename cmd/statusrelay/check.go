package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"statusrelay/internal/config"
	"statusrelay/internal/daemon"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(root.configPath, nil)
			if err != nil {
				return err
			}
			spec, err := daemon.ParseSchedule(cfg.Daemon.Schedule)
			if err != nil {
				return fmt.Errorf("%w: daemon.schedule: %v", config.ErrInvalid, err)
			}
			printSummary(cmd.OutOrStdout(), cfg, spec)
			return nil
		},
	}
}

// printSummary never prints tokens or the webhook URL.
func printSummary(w io.Writer, cfg *config.Config, spec daemon.ParsedSpec) {
	fmt.Fprintln(w, "config ok")
	fmt.Fprintf(w, "  cachet:   %s (timeout %s, tz %s)\n", cfg.Cachet.APIURL, cfg.CachetTimeout(), cfg.CachetLocation())
	fmt.Fprintf(w, "  discord:  webhook set, rate %.2f/s\n", cfg.Discord.RatePerSec)
	if cfg.Telegram.Enabled {
		fmt.Fprintf(w, "  telegram: chat %d\n", cfg.Telegram.ChatID)
	} else {
		fmt.Fprintln(w, "  telegram: disabled")
	}
	switch cfg.Storage.Driver {
	case "redis":
		fmt.Fprintf(w, "  storage:  redis (prefix %s)\n", cfg.Storage.KeyPrefix)
	default:
		fmt.Fprintf(w, "  storage:  %s %s\n", cfg.Storage.Driver, cfg.Storage.Path)
	}
	fmt.Fprintf(w, "  schedule: %s\n", spec.String())
	if cfg.Daemon.Ops.Enabled {
		fmt.Fprintf(w, "  ops:      %s\n", cfg.Daemon.Ops.Addr)
	}
}
