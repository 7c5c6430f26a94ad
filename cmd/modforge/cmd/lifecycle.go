package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInstallCommand creates the install command.
func NewInstallCommand(newSystem SystemFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "install <module>",
		Short: "Install a module and its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			if err := sys.Manager.Install(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", args[0])
			return nil
		},
	}
}

// NewEnableCommand creates the enable command.
func NewEnableCommand(newSystem SystemFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <module>",
		Short: "Enable an installed module, enabling its dependencies first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			if err := sys.Manager.Enable(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s\n", args[0])
			return nil
		},
	}
}

// NewDisableCommand creates the disable command.
func NewDisableCommand(newSystem SystemFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <module>",
		Short: "Disable an enabled module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			if err := sys.Manager.Disable(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Disabled %s\n", args[0])
			return nil
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(newSystem SystemFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <module>",
		Short: "Remove an installed module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			if err := sys.Manager.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(newSystem SystemFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered modules and their states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			modules, err := sys.Manager.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, module := range modules {
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-10s %-12s deps=%v\n",
					module.Name, module.Version, module.State, module.Dependencies)
			}
			return nil
		},
	}
}
