package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/seed"
)

// NewModulesCommand creates the modules command
func NewModulesCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List and toggle module descriptors",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(newModulesListCommand(flags))
	cmd.AddCommand(newModulesToggleCommand(flags, true))
	cmd.AddCommand(newModulesToggleCommand(flags, false))

	return cmd
}

func newModulesListCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the modules of the Blueprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			mods := rt.manager.Modules().Get()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(mods)
			}
			return printModules(cmd.OutOrStdout(), mods)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")
	return cmd
}

func newModulesToggleCommand(flags *globalFlags, enabled bool) *cobra.Command {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	return &cobra.Command{
		Use:   verb + " <module-id>...",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " one or more modules",
		Long: `Toggle the enabled flag of the given modules. More than one id runs a batch
update in which each module succeeds or fails on its own.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				toggle := rt.manager.DisableModule
				if enabled {
					toggle = rt.manager.EnableModule
				}
				if err := toggle(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "%sd %s\n", verb, args[0])
				return nil
			}

			result, err := rt.manager.BatchUpdateEnabled(cmd.Context(), args, enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%sd: %s\n", verb, strings.Join(result.Success, ", "))
			if len(result.Failed) > 0 {
				fmt.Fprintf(out, "failed: %s\n", strings.Join(result.Failed, ", "))
				return fmt.Errorf("%d of %d modules failed", len(result.Failed), len(args))
			}
			return nil
		},
	}
}

// NewSeedCommand creates the seed command
func NewSeedCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Work with seed files",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	var file string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Register and reconcile the modules of a seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			path := file
			if path == "" {
				path = rt.cfg.SeedFile
			}
			if path == "" {
				return fmt.Errorf("no seed file given (--file or seedFile in config)")
			}
			f, err := seed.Load(path)
			if err != nil {
				return err
			}

			report := rt.applySeed(cmd.Context(), f)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registered: %s\n", strings.Join(report.Registered, ", "))
			fmt.Fprintf(out, "updated: %s\n", strings.Join(report.Updated, ", "))
			fmt.Fprintf(out, "unchanged: %s\n", strings.Join(report.Unchanged, ", "))
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d seed modules failed", len(report.Failed))
			}
			return nil
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "Seed file (defaults to seedFile from config)")
	cmd.AddCommand(apply)

	return cmd
}

// NewCheckCommand creates the check command
func NewCheckCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Activate every enabled module once and report the outcome",
		Long: `Check resolves the dependency order, drives every enabled module to RUNNING,
prints the result and deactivates again. It exits non-zero when a module fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			report, err := rt.manager.Activate(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.manager.Deactivate(cmd.Context()) }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running: %s\n", strings.Join(report.Running, ", "))
			fmt.Fprintf(out, "skipped: %s\n", strings.Join(report.Skipped, ", "))
			for _, id := range report.FailedIDs() {
				fmt.Fprintf(out, "failed: %s: %v\n", id, report.Failed[id])
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d modules failed to activate", len(report.Failed))
			}
			return nil
		},
	}
}

func printModules(w io.Writer, mods []blueprint.ModuleDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tVERSION\tENABLED\tSTATUS\tDEPENDENCIES")
	for _, m := range mods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			m.ID, m.Name, m.ModuleType, m.Version, m.Enabled, m.Status, strings.Join(m.Dependencies, ","))
	}
	return tw.Flush()
}
