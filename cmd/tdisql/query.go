package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tdi-genomics/tdisql/internal/domain"
	"github.com/tdi-genomics/tdisql/internal/repository"
)

// queryFunc runs one analytical query and returns the value printed as JSON.
type queryFunc func(ctx context.Context, repo *repository.TDIRepository, cmd *cobra.Command, args []string) (any, error)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run an analytical query and print the result as JSON",
	}

	cmd.AddCommand(
		newQuery("gene-id <gene>", "Resolve a gene name to its id", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				return repo.GeneID(ctx, args[0])
			}),
		withClass(newQuery("tumors <gene>", "Tumors in which a gene is a driver", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, cmd *cobra.Command, args []string) (any, error) {
				raw, _ := cmd.Flags().GetString("class")
				class, ok := domain.ParseMutationClass(raw)
				if !ok {
					class = domain.MutationClass(raw)
				}
				return repo.TumorsWithDriver(ctx, args[0], class)
			})),
		newQuery("count-at <gene> <loc>", "Count tumors with a driver mutated at a position", cobra.ExactArgs(2),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				loc, err := intArg("loc", args[1])
				if err != nil {
					return nil, err
				}
				return repo.CountTumorsWithDriverAtLocation(ctx, args[0], loc)
			}),
		newQuery("tumors-at <gene> <loc>", "Tumors with a driver mutated at a position", cobra.ExactArgs(2),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				loc, err := intArg("loc", args[1])
				if err != nil {
					return nil, err
				}
				return repo.TumorsWithDriverAtLocation(ctx, args[0], loc)
			}),
		newQuery("hotspot-targets <gene> <loc>", "Target frequencies at one hotspot", cobra.ExactArgs(2),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				loc, err := intArg("loc", args[1])
				if err != nil {
					return nil, err
				}
				return repo.TargetFrequenciesAtHotspot(ctx, args[0], loc)
			}),
		newQuery("patient-targets <gene> <patient-id>", "Targets a driver has in one patient", cobra.ExactArgs(2),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				patientID, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("patient-id must be an integer: %q", args[1])
				}
				return repo.TargetGenesForPatient(ctx, args[0], patientID)
			}),
		withTop(newQuery("top-hotspots <gene>", "Most frequently mutated driver positions", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, cmd *cobra.Command, args []string) (any, error) {
				top, err := topFlag(cmd)
				if err != nil {
					return nil, err
				}
				return repo.TopHotspots(ctx, args[0], top)
			})),
		withTop(newQuery("hotspot-map <gene>", "Target frequencies at each top hotspot", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, cmd *cobra.Command, args []string) (any, error) {
				top, err := topFlag(cmd)
				if err != nil {
					return nil, err
				}
				return repo.TopHotspotsWithTargets(ctx, args[0], top)
			})),
		newQuery("overlap <gene> <gene>", "Frequent targets shared by two drivers", cobra.ExactArgs(2),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				return repo.OverlappingTargets(ctx, args[0], args[1])
			}),
		withMin(newQuery("drivers <target>", "Drivers linked to a target", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, cmd *cobra.Command, args []string) (any, error) {
				minTumors, _ := cmd.Flags().GetInt("min")
				return repo.DriversForTarget(ctx, args[0], minTumors)
			})),
		newQuery("without [gene...]", "Mutated tumors with no mutation in any of the genes", cobra.ArbitraryArgs,
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				return repo.TumorsWithoutAnyOf(ctx, args)
			}),
		withTop(newQuery("top-hotspot-targets <gene>", "Target tally over tumors at the top hotspots", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, cmd *cobra.Command, args []string) (any, error) {
				top, err := topFlag(cmd)
				if err != nil {
					return nil, err
				}
				return repo.TargetFrequenciesAtTopHotspots(ctx, args[0], top)
			})),
		newQuery("deletion-targets <gene>", "Target tally over tumors with a deep deletion of the gene", cobra.ExactArgs(1),
			func(ctx context.Context, repo *repository.TDIRepository, _ *cobra.Command, args []string) (any, error) {
				return repo.TargetFrequenciesWithDeletion(ctx, args[0])
			}),
	)

	return cmd
}

func newQuery(use, short string, args cobra.PositionalArgs, run queryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := run(ctx, repository.NewTDIRepository(a.db, a.log), cmd, args)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func withTop(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Int("top", 5, "Number of hotspots to rank")
	return cmd
}

// topFlag reads --top, which must not be negative.
func topFlag(cmd *cobra.Command) (int, error) {
	top, _ := cmd.Flags().GetInt("top")
	if top < 0 {
		return 0, fmt.Errorf("--top must not be negative: %d", top)
	}
	return top, nil
}

func withMin(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Int("min", 0, "Only drivers linked in more than this many tumors")
	return cmd
}

func withClass(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String("class", "all", "Mutation class: all, synonymous (syn) or nonsynonymous (nonsyn)")
	return cmd
}

func intArg(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %q", name, raw)
	}
	return n, nil
}
