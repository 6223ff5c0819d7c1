package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/ipc"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show indexing and service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	indexerClient, err := dialService("indexer")
	if err == nil {
		defer indexerClient.Close()
		if env, ok := indexerClient.SendRequest("indexer.stats", nil, 2000); ok && env.Type != ipc.KindError {
			fmt.Println("indexer:")
			fmt.Println(string(env.Result))
		}
	} else {
		fmt.Println("indexer: unreachable")
	}

	inferenceClient, err := dialService("inference")
	if err == nil {
		defer inferenceClient.Close()
		if env, ok := inferenceClient.SendRequest("inference.health", nil, 2000); ok && env.Type != ipc.KindError {
			fmt.Println("inference:")
			fmt.Println(string(env.Result))
		}
	} else {
		fmt.Println("inference: unreachable")
	}

	return nil
}
