package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"morphocv/adapters/cnn"
	"morphocv/adapters/hmc"
	"morphocv/adapters/resultstore"
	"morphocv/app"
	"morphocv/internal/aggregate"
	"morphocv/internal/errors"
)

func newCollectCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "hmc-collect <log-description> <out> <pred|ard>",
		Short: "Collect HMC fold outputs named by a log description into one canonical file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := hmc.ReadLogInfo(args[0])
			if err != nil {
				return err
			}
			collector := hmc.NewCollector(e.logger)
			out := args[1]
			switch args[2] {
			case "pred":
				res, err := collector.CollectPredictions(info)
				if err != nil {
					return err
				}
				return writeFileAtomic(out, func(w io.Writer) error { return resultstore.EncodePredictions(w, res) })
			case "ard":
				table, err := collector.CollectARD(info)
				if err != nil {
					return err
				}
				return writeFileAtomic(out, func(w io.Writer) error { return resultstore.EncodeRelevance(w, table) })
			default:
				return errors.ConfigInvalidf("collect mode %q: expected pred or ard", args[2])
			}
		},
	}
}

func newCNNImportCmd(e *env) *cobra.Command {
	var expectedRows int
	cmd := &cobra.Command{
		Use:   "cnn-import <experiment> <source-pattern> <iterations>",
		Short: "Import per-iteration CNN prediction tables into the canonical format",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, desc, err := lookupExperiment(e.cfg, args[0])
			if err != nil {
				return err
			}
			iterations, err := parseIterations(args[2])
			if err != nil {
				return err
			}
			store, err := resultstore.NewFileStore(e.cfg.Paths.ResultDir, false, e.logger)
			if err != nil {
				return err
			}
			importer := cnn.NewImporter(store, e.cfg.Run.ProbTolerance, e.logger)
			return importer.Import(desc, args[1], iterations, expectedRows)
		},
	}
	cmd.Flags().IntVar(&expectedRows, "rows", 0, "expected rows per iteration; 0 skips the check")
	return cmd
}

func newRelevanceCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "relevance <experiment> <iterations> <folds>",
		Short: "Reduce stored fold relevance to iteration and experiment tables",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, desc, err := lookupExperiment(e.cfg, args[0])
			if err != nil {
				return err
			}
			if !desc.HasRelevance() {
				return errors.ConfigInvalidf("experiment %s has no relevance pattern", desc.Key())
			}
			iterations, err := parseIterations(args[1])
			if err != nil {
				return err
			}
			nFolds, err := parsePositive("folds", args[2])
			if err != nil {
				return err
			}
			store, err := resultstore.NewFileStore(e.cfg.Paths.ResultDir, e.cfg.Run.ConsumeResults, e.logger)
			if err != nil {
				return err
			}
			aggregator := aggregate.NewAggregator(store, e.cfg.Run.ProbTolerance, e.logger)
			sum, err := app.NewRelevanceService(aggregator, e.logger).Reduce(cmd.Context(), desc, iterations, nFolds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d features, %d populations, mean in %s\n",
				desc.Key(), sum.Mean.Width(), len(sum.Populations), store.Path(desc.RelevanceMeanFile()))
			return nil
		},
	}
}
