package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tdi-genomics/tdisql/internal/domain"
	"github.com/tdi-genomics/tdisql/internal/loader"
)

var loadTables = []string{"cancer-types", "genes", "platforms", "groups", "patients", "mutations", "scnas", "degs", "tdi"}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <table> <file>",
		Short: "Bulk load a delimited file into a TDI table",
		Long: "Bulk load a delimited file with a header line into one TDI table.\n" +
			"Tables: " + strings.Join(loadTables, ", ") + ". Files ending in .gz are decompressed.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// dry runs still resolve foreign keys, so they connect too
			a, err := setup(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := loadOptions(cmd, *a.config.GetLoaderConfig())
			if err != nil {
				return err
			}
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.Output = cmd.OutOrStdout()

			l := loader.New(a.db, opts, a.log)
			spec, err := l.SpecFor(args[0])
			if err != nil {
				return fmt.Errorf("%w (tables: %s)", err, strings.Join(loadTables, ", "))
			}

			report, err := l.Load(ctx, args[1], spec)
			if report != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), report.Summary())
				for _, issue := range report.Issues {
					fmt.Fprintf(cmd.ErrOrStderr(), "  line %d: %s (%s)\n", issue.Line, issue.Outcome, issue.Reason)
				}
			}
			return err
		},
	}

	cmd.Flags().String("delimiter", "", "Field delimiter (default from config, tab)")
	cmd.Flags().String("mode", "", "Transaction mode: per_row or atomic")
	cmd.Flags().Bool("dry-run", false, "Print the INSERT statements instead of executing them")
	cmd.Flags().String("driver-kind", "", "TDI driver column kind: gene, group or auto")
	cmd.Flags().Int64("experiment-id", 0, "Experiment id recorded on TDI results")
	return cmd
}

// loadOptions starts from the loader config section and applies any flags
// given on the command line.
func loadOptions(cmd *cobra.Command, cfg domain.LoaderConfig) (loader.Options, error) {
	flags := cmd.Flags()
	if flags.Changed("delimiter") {
		cfg.Delimiter, _ = flags.GetString("delimiter")
		if cfg.Delimiter == `\t` {
			cfg.Delimiter = "\t"
		}
	}
	if flags.Changed("mode") {
		cfg.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("driver-kind") {
		cfg.DriverKind, _ = flags.GetString("driver-kind")
	}
	if flags.Changed("experiment-id") {
		cfg.ExperimentID, _ = flags.GetInt64("experiment-id")
	}
	return loader.OptionsFromConfig(cfg)
}

func experimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Manage TDI experiment records",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record an experiment and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			a, err := setup(cmd.Context(), cmd, !dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			exp := &domain.Experiment{}
			exp.Model, _ = cmd.Flags().GetString("model")
			exp.Description, _ = cmd.Flags().GetString("description")
			exp.ParameterSet, _ = cmd.Flags().GetString("parameters")
			exp.Name, _ = cmd.Flags().GetString("name")
			exp.Date, _ = cmd.Flags().GetString("date")

			l := loader.New(a.db, loader.Options{DryRun: dryRun, Output: cmd.OutOrStdout()}, a.log)
			id, err := l.AddExperiment(cmd.Context(), exp)
			if err != nil {
				return err
			}
			if !dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	addCmd.Flags().String("model", "", "Model that produced the results")
	addCmd.Flags().String("description", "", "Free-text description")
	addCmd.Flags().String("parameters", "", "Parameter set used")
	addCmd.Flags().String("name", "", "Experiment name")
	addCmd.Flags().String("date", "", "Experiment date, yyyy-mm-dd")
	addCmd.Flags().Bool("dry-run", false, "Print the INSERT statement instead of executing it")
	cmd.AddCommand(addCmd)

	return cmd
}
