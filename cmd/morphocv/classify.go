package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"morphocv/adapters/excel"
	"morphocv/adapters/gpc"
	"morphocv/adapters/hmc"
	"morphocv/adapters/process"
	"morphocv/adapters/resultstore"
	"morphocv/app"
	"morphocv/internal/dataset"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// newClassifyCmd builds the gpc and hmc commands, which differ only in the
// classifier they drive
func newClassifyCmd(e *env, name string) *cobra.Command {
	var seed uint64
	var keepWork bool
	cmd := &cobra.Command{
		Use:   name + " <experiment> <data> <iterations> <folds> [selection]",
		Short: fmt.Sprintf("Run resampled k-fold cross-validation with the %s classifier", name),
		Args:  cobra.RangeArgs(4, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, desc, err := lookupExperiment(e.cfg, args[0])
			if err != nil {
				return err
			}
			iterations, err := parseIterations(args[2])
			if err != nil {
				return err
			}
			nFolds, err := parsePositive("folds", args[3])
			if err != nil {
				return err
			}
			var selection []int
			if len(args) == 5 {
				if selection, err = dataset.ReadSelection(args[4]); err != nil {
					return err
				}
			}

			runner := process.NewRunner(e.logger)
			var clf ports.FoldClassifier
			if name == "gpc" {
				clf = gpc.NewClassifier(gpc.Options{
					Executable:    e.cfg.GPC.Executable,
					MaxRetries:    e.cfg.GPC.MaxRetries,
					KeepWorkFiles: keepWork,
				}, runner, e.logger)
			} else {
				h, err := hmc.NewClassifier(hmc.Options{
					BinDir:      e.cfg.HMC.BinDir,
					HiddenUnits: e.cfg.HMC.HiddenUnits,
					ARDLevel:    e.cfg.HMC.ARDLevel,
					Iterations:  e.cfg.HMC.Iterations,
					Seed:        seed,
				}, runner, e.logger)
				if err != nil {
					return err
				}
				clf = h
			}

			data, err := excel.NewSpecimenReader(args[1]).ReadSpecimens()
			if err != nil {
				return errors.Wrapf(err, "specimens %s", args[1])
			}
			perms, err := loadPermutations(e.cfg, desc.Resampling())
			if err != nil {
				return err
			}
			store, err := resultstore.NewFileStore(e.cfg.Paths.ResultDir, false, e.logger)
			if err != nil {
				return err
			}

			svc := app.NewCrossValidationService(clf, store, e.cfg.Run.MaxThreads, e.cfg.Run.ProbTolerance, e.logger)
			res, err := svc.Run(cmd.Context(), app.CrossValidationRequest{
				Experiment:   desc,
				Data:         data,
				Selection:    selection,
				Permutations: perms,
				IterationIDs: iterations,
				NFolds:       nFolds,
				Normalise:    e.cfg.Run.Normalise,
				WorkDir:      e.cfg.Paths.WorkDir,
			})
			if res == nil {
				return err
			}
			for _, it := range res.Iterations {
				fmt.Fprintf(cmd.OutOrStdout(), "%s iteration %d: %d rows, accuracy %.4f\n", desc.Key(), it.Iteration, it.Rows, it.Accuracy)
			}
			if err != nil {
				return errors.Wrapf(err, "%s: iterations %v failed", desc.Key(), res.Failed)
			}
			return nil
		},
	}
	if name == "hmc" {
		cmd.Flags().Uint64Var(&seed, "seed", 1, "base sampler seed; folds derive their own from it")
	} else {
		cmd.Flags().BoolVar(&keepWork, "keep-work", false, "keep the per-fold tool files")
	}
	return cmd
}
