package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/betterspotlight/bspotlight/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the daemon log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(tail)
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 100, "Number of trailing lines to print")
	return cmd
}

func runLogs(tail int) error {
	path := logging.DefaultLogPath()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > tail {
			lines = lines[1:]
		}
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
