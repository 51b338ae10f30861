package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("Blueprint CLI v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type globalFlags struct {
	configPath    string
	configSection string
	blueprintID   string
}

// NewRootCommand creates the root command for the blueprintctl application
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "blueprintctl",
		Short: "Blueprint CLI - Run and manage the modules of a Blueprint",
		Long: `Blueprint CLI hosts the modules of a Blueprint and manages their descriptors.
It serves the admin API, applies seed files and drives module lifecycles.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML, TOML or JSON config file")
	cmd.PersistentFlags().StringVar(&flags.configSection, "config-section", "", "Read only this top-level key of the config file")
	cmd.PersistentFlags().StringVarP(&flags.blueprintID, "blueprint", "b", "", "Blueprint id (defaults to the seed file's blueprint)")

	cmd.AddCommand(NewServeCommand(flags))
	cmd.AddCommand(NewModulesCommand(flags))
	cmd.AddCommand(NewSeedCommand(flags))
	cmd.AddCommand(NewCheckCommand(flags))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}
