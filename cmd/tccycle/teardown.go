package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tccycle/internal/app"
)

func newTeardownCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Remove shaping left behind by a process that did not exit cleanly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}
			cfg.Telemetry.CSVPath = ""
			cfg.Telemetry.MetricsAddress = ""
			cfg.Watcher.Enabled = false

			stack, err := app.Build(cfg, stdoutLogger(cfg), app.Options{})
			if err != nil {
				return err
			}
			defer stack.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Controller.TeardownTimeout)
			defer cancel()
			stack.Teardown(ctx)

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed shaping from %s (%s)\n", cfg.Interface, cfg.Direction)
			return err
		},
	}
}
