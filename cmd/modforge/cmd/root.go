// Package cmd implements the modforge command line interface: thin glue
// over the lifecycle, query and compilation operations the core exposes.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modforge"
)

// NewRootCommand creates the root command for the modforge CLI.
func NewRootCommand() *cobra.Command {
	var configPath string
	var modulesRoot string
	var storageDir string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "modforge",
		Short: "modforge - module lifecycle manager",
		Long: `modforge discovers application modules, manages their install/enable
lifecycle, and compiles dependency graphs, loading waves and binding tables
into a cached artifact for fast startup.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (yaml or toml)")
	cmd.PersistentFlags().StringVar(&modulesRoot, "modules", "", "modules root directory (overrides config)")
	cmd.PersistentFlags().StringVar(&storageDir, "storage", "", "storage directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	newSystem := func() (*modforge.System, error) {
		cfg, err := modforge.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if modulesRoot != "" {
			cfg.ModulesRoot = modulesRoot
		}
		if storageDir != "" {
			cfg.StorageDir = storageDir
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := modforge.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return modforge.NewSystem(cfg, logger), nil
	}

	cmd.AddCommand(NewInstallCommand(newSystem))
	cmd.AddCommand(NewEnableCommand(newSystem))
	cmd.AddCommand(NewDisableCommand(newSystem))
	cmd.AddCommand(NewRemoveCommand(newSystem))
	cmd.AddCommand(NewListCommand(newSystem))
	cmd.AddCommand(NewCompileCommand(newSystem))

	return cmd
}

// SystemFactory builds a wired system from the persistent flags.
type SystemFactory func() (*modforge.System, error)
