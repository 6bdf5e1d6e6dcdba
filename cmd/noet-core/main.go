// Command noet-core is a thin smoke-test harness for the compilation driver
// (§1: the CLI surface proper is out of scope). It parses flags, loads
// config, wires the codec registry and the optional sqlite persistent
// store, and runs one compilation pass — the same shape as the teacher's
// cmd/nerd/main.go (one cobra.Command, flag parsing, one call into the
// package that does the real work).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"noet-core/internal/codec"
	"noet-core/internal/codec/markdown"
	"noet-core/internal/codec/metaformat"
	"noet-core/internal/codec/network"
	"noet-core/internal/config"
	"noet-core/internal/driver"
	"noet-core/internal/logging"
	"noet-core/internal/store"
	"noet-core/internal/store/sqlite"
)

func main() {
	var verbose bool
	var noCache bool
	var write bool
	var force bool

	cmd := &cobra.Command{
		Use:   "noet-core compile <dir>",
		Short: "Compile a network of belief documents into a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(verbose); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logging.Sync()

			workspace, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			cfg.Logging.Verbose = verbose
			if write {
				cfg.WriteSource = true
			}
			cfg.ForceReparse = force

			defaultFormat := metaformat.Format(cfg.DefaultFormat)
			registry := codec.Registry{
				"md":   markdown.NewFactory(cfg.ReservedIDPrefix, defaultFormat),
				"toml": network.NewFactory(defaultFormat),
				"json": network.NewFactory(defaultFormat),
			}

			var source store.BeliefSource
			var globalBB *store.BeliefBase
			if !noCache && cfg.CachePath != "" {
				dbPath := filepath.Join(workspace, cfg.CachePath)
				if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
					return fmt.Errorf("creating cache dir: %w", err)
				}
				persisted, err := sqlite.Open(dbPath)
				if err != nil {
					return fmt.Errorf("opening cache: %w", err)
				}
				defer persisted.Close()
				source = persisted
				globalBB = persisted.Mem()
			}

			d := driver.New(cfg, registry, driver.OSFS{}, globalBB, source)
			result, err := d.Run()
			if err != nil {
				return fmt.Errorf("compiling %s: %w", workspace, err)
			}

			fmt.Printf("parsed=%d skipped=%d unresolved=%d stale-reparsed=%d\n",
				result.Parsed, result.Skipped, result.Unresolved, result.StaleReparsed)
			for _, diag := range result.Diagnostics {
				fmt.Printf("  %s [%d]: %s\n", diag.Path, diag.Kind, diag.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the persistent sqlite cache")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write canonical source back to the input files")
	cmd.Flags().BoolVar(&force, "force", false, "reparse every file regardless of cached mtimes")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
