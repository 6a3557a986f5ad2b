package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tccycle/internal/config"
)

func newProfilesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Print the resolved profile sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), cfg)
		},
	}
}

func printProfiles(w io.Writer, cfg config.Config) error {
	table, err := cfg.ProfileTable()
	if err != nil {
		return err
	}
	shaping := table.Shaping()

	fmt.Fprintf(w, "Sequence on %s (%s), dwell %s, latency %s, delay %s, limit %d:\n\n",
		cfg.Interface, cfg.Direction, cfg.Dwell, shaping.Latency, shaping.Delay, shaping.Limit)
	fmt.Fprintf(w, "%-4s  %-12s  %10s  %8s  %14s  %s\n", "STEP", "PROFILE", "RATE", "BURST", "HUMAN", "SOURCE")
	fmt.Fprintf(w, "%-4s  %-12s  %10s  %8s  %14s  %s\n", "----", "-------", "----", "-----", "-----", "------")

	for i, name := range cfg.Sequence {
		profile, err := table.Resolve(name)
		if err != nil {
			return err
		}
		source := "table"
		if profile.Fallback {
			source = "fallback burst"
		}
		fmt.Fprintf(w, "%-4d  %-12s  %10s  %8s  %14s  %s\n",
			i, name, profile.Rate, profile.Burst, profile.Rate.Human(), source)
	}

	fmt.Fprintf(w, "\nRegistered: %s\n", strings.Join(table.Names(), ", "))
	return nil
}
