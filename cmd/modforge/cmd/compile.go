package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modforge"
)

// NewCompileCommand creates the compile command group.
func NewCompileCommand(newSystem SystemFactory) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the module registry, dependency graph and loading waves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}

			if !force {
				needed, err := sys.Compiler.IsCompilationNeeded(cmd.Context())
				if err != nil {
					return err
				}
				if !needed {
					fmt.Fprintln(cmd.OutOrStdout(), "Compiled artifact is current")
					return nil
				}
			}

			result := sys.Compiler.Compile(cmd.Context(), modforge.CompileOptions{Force: force})
			if !result.Success {
				return fmt.Errorf("compilation failed: %s", result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compiled %d modules in %dms\n",
				result.ModulesCompiled, result.CompilationTimeMs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "compile even when the artifact is current")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the compiled artifact is stale or invalid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			needed, err := sys.Compiler.IsCompilationNeeded(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compilation needed: %v\n", needed)
			fmt.Fprintf(cmd.OutOrStdout(), "artifact valid:     %v\n", sys.Compiler.ValidateCompiledFiles())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all compiled artifact files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			if !sys.Compiler.ClearCompiledCache(cmd.Context()) {
				return fmt.Errorf("failed to clear compiled cache")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Compiled cache cleared")
			return nil
		},
	})

	return cmd
}
