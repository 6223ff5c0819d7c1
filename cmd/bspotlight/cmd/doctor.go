package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/preflight"
	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), cmd, verbose)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show detailed diagnostics")
	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, verbose bool) error {
	checker := preflight.New(preflight.WithVerbose(verbose), preflight.WithOutput(cmd.OutOrStdout()))
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	results := checker.RunAll(ctx, home)
	checker.PrintResults(results)

	layout, err := runtimeenv.Resolve(version.Version)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "runtime environment: FAIL (%v)\n", err)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "runtime environment: OK (%s)\n", layout.InstanceDir)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("doctor found critical failures")
	}
	return nil
}
