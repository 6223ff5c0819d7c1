package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/ipc"
)

func newRebuildCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Force a rebuild-lane re-index of one path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Item path to rebuild; an empty key is enqueued as-is and does not rebuild the whole index")
	return cmd
}

func runRebuild(key string) error {
	client, err := dialService("indexer")
	if err != nil {
		return err
	}
	defer client.Close()

	params := map[string]any{"key": key, "lane": "rebuild"}
	env, ok := client.SendRequest("indexer.enqueue", params, 5000)
	if !ok {
		return fmt.Errorf("indexer service did not respond")
	}
	if env.Type == ipc.KindError {
		return fmt.Errorf("indexer service error: %s", env.Error.Message)
	}
	fmt.Println(string(env.Result))
	return nil
}
