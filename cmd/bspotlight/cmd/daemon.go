package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/internal/supervisor"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

// serviceBinaries lists the child processes the daemon supervises, in
// startup order, per §2's process model.
var serviceBinaries = []string{
	"bspotlight-indexer",
	"bspotlight-extractor",
	"bspotlight-inference",
	"bspotlight-query",
}

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the bspotlight background services",
	}
	cmd.AddCommand(newDaemonStartCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start all background services and supervise them in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd.Context())
		},
	}
}

func runDaemonStart(ctx context.Context) error {
	layout, err := runtimeenv.Resolve(version.Version)
	if err != nil {
		return fmt.Errorf("resolve runtime environment: %w", err)
	}
	if err := runtimeenv.Reconcile(layout.Root, layout.Instance.InstanceID); err != nil {
		rootLog.Warn("reconcile stale instance directories", "error", err)
	}

	exeDir, err := binaryDir()
	if err != nil {
		return err
	}

	sup := supervisor.New(layout.SocketDir, layout.PidDir, rootLog)
	for _, name := range serviceBinaries {
		sup.AddService(name, filepath.Join(exeDir, name))
	}

	events := sup.Subscribe()
	go func() {
		for ev := range events {
			rootLog.Info("supervisor event", "kind", string(ev.Kind), "service", ev.Service)
		}
	}()

	if !sup.StartAll() {
		rootLog.Warn("one or more services failed to start; continuing with the rest")
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	rootLog.Info("daemon shutting down")
	sup.StopAll()
	return nil
}

func binaryDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	return filepath.Dir(exe), nil
}
