package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"tccycle/internal/app"
	"tccycle/internal/config"
	"tccycle/internal/detector"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start cycling profiles until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, source, err := flags.load(cmd)
			if err != nil {
				return err
			}
			logger := stdoutLogger(cfg)
			logger.Info("configuration loaded",
				slog.String("source", source),
				slog.String("interface", cfg.Interface),
				slog.String("direction", cfg.Direction),
				slog.Duration("dwell", cfg.Dwell),
				slog.Any("sequence", cfg.Sequence))

			if !skipChecks {
				if err := runChecks(logger, cfg); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			stack, err := app.Build(cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer stack.Close()

			if err := stack.Daemon.Run(ctx); err != nil {
				logger.Error("daemon terminated", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "skip binary, privilege and kernel module checks")
	return cmd
}

func runChecks(logger *slog.Logger, cfg config.Config) error {
	ingress := cfg.Direction != config.DirectionEgress
	if err := detector.ValidateRuntime(logger, ingress); err != nil {
		return err
	}
	return detector.ValidateKernelModules(logger, ingress)
}
