package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"morphocv/adapters/postgres"
	"morphocv/adapters/report"
	"morphocv/adapters/resultstore"
	"morphocv/app"
	"morphocv/domain/cv"
	"morphocv/internal/aggregate"
	"morphocv/internal/config"
	"morphocv/internal/errors"
	"morphocv/internal/metrics"
	"morphocv/internal/resample"
	"morphocv/ports"
)

func newCompareCmd(e *env) *cobra.Command {
	var expectedRows int
	cmd := &cobra.Command{
		Use:   "compare <iterations> [group...]",
		Short: "Compare stored experiments against the lowest-accuracy baseline and write a report",
		Long: "Compare scores every experiment of each named group (all configured groups when none\n" +
			"is named, the whole catalog when none is configured) and saves a report under REPORT_DIR.\n" +
			"Metrics are also stored in Postgres when DATABASE_URL is set.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iterations, err := parseIterations(args[0])
			if err != nil {
				return err
			}
			exps, err := config.LoadExperiments(e.cfg.Paths.ExperimentsFile)
			if err != nil {
				return err
			}
			var groups []metrics.Group
			if names := args[1:]; len(names) > 0 {
				for _, name := range names {
					g, ok := exps.Group(name)
					if !ok {
						return errors.ConfigInvalidf("group %q is not in %s", name, e.cfg.Paths.ExperimentsFile)
					}
					groups = append(groups, metrics.Group{Name: g.Name, Selection: g.Selection})
				}
			} else {
				for _, g := range exps.Groups {
					groups = append(groups, metrics.Group{Name: g.Name, Selection: g.Selection})
				}
			}

			store, err := resultstore.NewFileStore(e.cfg.Paths.ResultDir, e.cfg.Run.ConsumeResults, e.logger)
			if err != nil {
				return err
			}
			archive, err := report.NewArchive(e.cfg.Paths.ReportDir, e.logger)
			if err != nil {
				return err
			}
			var sink ports.MetricSink
			if url := e.cfg.Database.URL; url != "" {
				repo, err := postgres.Connect(cmd.Context(), url)
				if err != nil {
					return err
				}
				defer repo.Close()
				sink = repo
			}

			aggregator := aggregate.NewAggregator(store, e.cfg.Run.ProbTolerance, e.logger)
			svc := app.NewComparisonService(aggregator, archive, sink, e.cfg.Reporting.MaxSignificance, e.logger)
			res, err := svc.Compare(cmd.Context(), app.ComparisonRequest{
				Catalog:      exps.Catalog,
				Groups:       groups,
				IterationIDs: iterations,
				ExpectedRows: expectedRows,
				ClassLabels:  e.cfg.Run.ClassLabels,
			})
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records in %s\n", res.RunID, len(res.Records), res.ReportDir)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&expectedRows, "rows", 0, "expected samples per iteration; 0 only requires agreement")
	return cmd
}

func newResampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resample <samples> <iterations> <reshuffle|bootstrap> <out> [seed]",
		Short: "Generate a shared resample index file",
		Args:  cobra.RangeArgs(4, 5),
		// the index is generated before any configuration exists
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			nSamples, err := parsePositive("samples", args[0])
			if err != nil {
				return err
			}
			nIterations, err := parsePositive("iterations", args[1])
			if err != nil {
				return err
			}
			kind, err := cv.ParseResampleKind(args[2])
			if err != nil {
				return errors.WithCode(errors.CodeConfigInvalid, err)
			}
			var seed uint64 = 1
			if len(args) == 5 {
				if seed, err = strconv.ParseUint(args[4], 10, 64); err != nil {
					return errors.ConfigInvalidf("seed %q: %v", args[4], err)
				}
			}
			perms, err := resample.Generate(nSamples, nIterations, kind, seed)
			if err != nil {
				return err
			}
			return writeFileAtomic(args[3], func(w io.Writer) error { return resample.WriteIndex(w, perms) })
		},
	}
}
