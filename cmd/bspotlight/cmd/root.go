// Package cmd provides the CLI commands for bspotlight, the desktop
// semantic+lexical file search engine: one cobra root, one subcommand
// per operator-facing verb, PersistentPreRunE wiring logging.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/logging"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

var (
	debugMode bool
	loggingCleanup func()
	rootLog *slog.Logger
)

// Execute builds and runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command for the bspotlight CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bspotlight",
		Short:   "Local desktop search engine (lexical + semantic)",
		Version: version.Version,
		Long: `bspotlight indexes the files on your machine and serves fast,
privacy-preserving lexical and semantic search entirely locally.

Run 'bspotlight daemon start' to launch the background services, then
'bspotlight search <query>' to search.`,
	}
	cmd.SetVersionTemplate("bspotlight version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	log, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	rootLog = log
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
	}
	return nil
}
