package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"statusrelay/internal/app"
	"statusrelay/internal/config"
	logx "statusrelay/pkg/logx"
)

const defaultConfigPath = "./statusrelay.yaml"

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "statusrelay",
		Short: "Relay Cachet component status changes to Discord",
		Long: `statusrelay polls a Cachet status page for component status changes and
posts each change to a Discord webhook, optionally mirrored to Telegram.

Changes already reported are remembered in a local snapshot between runs.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&opts.configPath, "config-path", defaultConfigPath, "alias for --config")
	_ = root.PersistentFlags().MarkHidden("config-path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "force debug logging to the console")

	root.AddCommand(
		newRunCmd(opts),
		newDaemonCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

// loadConfig parses the file, lets override adjust it, then validates and commits.
func loadConfig(path string, override func(*config.Config) error) (*config.Manager, *config.Config, error) {
	mgr := config.NewManager(path)
	cfg, err := mgr.Parse()
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		if err := override(cfg); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	mgr.Commit(cfg)
	return mgr, cfg, nil
}

func setupLogging(cfg *config.Config, debug bool) (*logx.Service, logx.Logger) {
	return logx.New(app.MapLogConfig(cfg, debug))
}

// persistOverride replaces storage.path. It is an error for drivers that
// keep no local file.
func persistOverride(path string) func(*config.Config) error {
	return func(cfg *config.Config) error {
		p := strings.TrimSpace(path)
		if p == "" {
			return nil
		}
		if cfg.Storage.Driver == "redis" {
			return fmt.Errorf("%w: --persist-path cannot be used with storage.driver=redis", config.ErrInvalid)
		}
		cfg.Storage.Path = p
		return nil
	}
}
