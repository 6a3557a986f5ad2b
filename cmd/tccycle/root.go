package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tccycle/internal/config"
)

type globalFlags struct {
	configPath string
	iface      string
	direction  string
	ifb        string
	dwell      time.Duration
	sequence   []string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "tccycle",
		Short: "Cycle an interface through bandwidth profiles with tc",
		Long: "tccycle drives Linux traffic control to step an interface through a " +
			"repeating sequence of rate limits, shaping egress directly and ingress " +
			"through an ifb device.",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to YAML configuration (default: $"+config.EnvConfigPath+", ./tccycle.yaml, "+config.DefaultConfigPath+")")
	pf.StringVarP(&flags.iface, "interface", "i", "", "network interface to shape")
	pf.StringVarP(&flags.direction, "direction", "d", "", "egress, ingress or both")
	pf.StringVar(&flags.ifb, "ifb", "", "ifb device used for ingress shaping")
	pf.DurationVar(&flags.dwell, "dwell", 0, "time each profile stays installed")
	pf.StringSliceVar(&flags.sequence, "sequence", nil, "comma separated profile sequence")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "json or text")

	root.AddCommand(
		newRunCmd(flags),
		newProfilesCmd(flags),
		newTeardownCmd(flags),
		newCheckCmd(flags),
	)
	return root
}

// load reads the configuration and applies flags that were set explicitly.
func (f *globalFlags) load(cmd *cobra.Command) (config.Config, string, error) {
	cfg, source, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, "", err
	}

	changed := cmd.Flags().Changed
	if changed("interface") {
		cfg.Interface = f.iface
	}
	if changed("direction") {
		cfg.Direction = f.direction
	}
	if changed("ifb") {
		cfg.IFBDevice = f.ifb
	}
	if changed("dwell") {
		cfg.Dwell = f.dwell
	}
	if changed("sequence") {
		cfg.Sequence = append([]string(nil), f.sequence...)
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, source, nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func stdoutLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.Logging)
}
