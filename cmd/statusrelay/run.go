package main

import (
	"github.com/spf13/cobra"

	"statusrelay/internal/app"
	"statusrelay/internal/eventbus"
	logx "statusrelay/pkg/logx"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var persistPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform a single relay pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(root.configPath, persistOverride(persistPath))
			if err != nil {
				return err
			}
			logs, log := setupLogging(cfg, root.debug)
			defer logs.Close()

			rt, err := app.Build(cfg, log, eventbus.Nop{})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(); cerr != nil {
					log.Warn("closing storage failed", logx.Err(cerr))
				}
			}()

			res, err := rt.Relay.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("run finished",
				logx.String("run_id", res.RunID),
				logx.Int("changed", res.Changed),
				logx.Int("sent", res.Sent),
				logx.Duration("took", res.Took),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&persistPath, "persist-path", "", "snapshot path; overrides storage.path")
	return cmd
}
