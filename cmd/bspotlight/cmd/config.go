package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/betterspotlight/bspotlight/internal/runtimeenv"
	"github.com/betterspotlight/bspotlight/internal/settingsstore"
	"github.com/betterspotlight/bspotlight/internal/store"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change persisted settings",
	}
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigExportCmd())
	cmd.AddCommand(newConfigImportCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value of one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openSettingsStore()
			if err != nil {
				return err
			}
			defer closeFn()
			fmt.Println(s.GetString(args[0], ""))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := openSettingsStore()
			if err != nil {
				return err
			}
			defer closeFn()
			return s.SetString(args[0], args[1])
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all persisted settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			values, err := db.ListSettings()
			if err != nil {
				return err
			}
			for _, k := range sortedKeys(values) {
				fmt.Printf("%s=%s\n", k, values[k])
			}
			return nil
		},
	}
}

// newConfigExportCmd dumps every persisted setting as a YAML document,
// the companion format to instance.json (spec.md §6), matching the
// teacher's yaml.Marshal-based config round trip.
func newConfigExportCmd() *cobra.Command {
	var outPath string
	c := &cobra.Command{
		Use:   "export",
		Short: "Export all persisted settings to a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			values, err := db.ListSettings()
			if err != nil {
				return err
			}
			raw, err := yaml.Marshal(values)
			if err != nil {
				return fmt.Errorf("marshal settings: %w", err)
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}
			return os.WriteFile(outPath, raw, 0o644)
		},
	}
	c.Flags().StringVarP(&outPath, "output", "o", "", "write to this path instead of stdout")
	return c
}

// newConfigImportCmd loads a YAML settings document (as produced by
// export) and persists every key it contains.
func newConfigImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import settings from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var values map[string]string
			if err := yaml.Unmarshal(raw, &values); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			for _, k := range sortedKeys(values) {
				if err := db.SetSetting(k, values[k]); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// openStore opens the same persistent store the four service processes
// write to, so `bspotlight config` changes are observed by a running
// daemon on its next settingsstore read.
func openStore() (*store.Store, error) {
	path, err := runtimeenv.StorePath()
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	return store.Open(path)
}

func openSettingsStore() (*settingsstore.Store, func(), error) {
	db, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return settingsstore.New(db), func() { _ = db.Close() }, nil
}
