package main

import (
	"github.com/spf13/cobra"

	"statusrelay/internal/daemon"
)

func newDaemonCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run relay passes on daemon.schedule until stopped",
		Long: `Runs a relay pass immediately, then on every tick of daemon.schedule.
SIGINT or SIGTERM stops the daemon after the current pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, cfg, err := loadConfig(root.configPath, nil)
			if err != nil {
				return err
			}
			logs, log := setupLogging(cfg, root.debug)
			defer logs.Close()
			mgr.SetLogger(log)

			d, err := daemon.New(daemon.Options{
				Manager: mgr,
				Logs:    logs,
				Debug:   root.debug,
				Log:     log,
			})
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
}
