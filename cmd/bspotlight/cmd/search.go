package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/ipc"
	"github.com/betterspotlight/bspotlight/internal/query"
	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/pkg/version"
)

func newSearchCmd() *cobra.Command {
	var mode string
	var limit int
	var debug bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(strings.Join(args, " "), mode, limit, debug)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "auto", "Query mode: strict, auto, relaxed")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	cmd.Flags().BoolVar(&debug, "debug", false, "Include pipeline debug info")
	return cmd
}

func runSearch(q, mode string, limit int, debug bool) error {
	client, err := dialService("query")
	if err != nil {
		return err
	}
	defer client.Close()

	req := query.Request{Query: q, Mode: query.Mode(mode), Limit: limit, Debug: debug}
	env, ok := client.SendRequest("query.search", req, 5000)
	if !ok {
		return fmt.Errorf("query service did not respond")
	}
	if env.Type == ipc.KindError {
		return fmt.Errorf("query service error: %s", env.Error.Message)
	}

	var resp query.Response
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. %s  (score=%.3f)\n", i+1, r.Path, r.FusedScore)
	}
	if debug && resp.Debug != nil {
		raw, _ := json.MarshalIndent(resp.Debug, "", "  ")
		fmt.Println(string(raw))
	}
	return nil
}

// dialService connects to the named service's IPC socket under the
// current runtime instance.
func dialService(name string) (*ipc.Client, error) {
	layout, err := runtimeenv.Resolve(version.Version)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime environment: %w", err)
	}
	return ipc.NewClient(runtimeenv.SocketPath(layout.SocketDir, name), nil, rootLog)
}
