// Command morphocv runs the resampled cross-validation pipeline: external
// classifier runs, result collection, relevance reduction and comparison.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"morphocv/internal"
	"morphocv/internal/config"
	"morphocv/internal/errors"
)

// env is the configuration shared by every subcommand, loaded once before
// the command runs
type env struct {
	cfg    *config.Config
	logger *internal.Logger
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	e := &env{}
	rootCmd := &cobra.Command{
		Use:           "morphocv",
		Short:         "Resampled k-fold evaluation and classifier comparison",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = internal.NewDefaultLogger()
			return nil
		},
	}

	rootCmd.AddCommand(
		newClassifyCmd(e, "gpc"),
		newClassifyCmd(e, "hmc"),
		newCollectCmd(e),
		newCNNImportCmd(e),
		newRelevanceCmd(e),
		newCompareCmd(e),
		newResampleCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

// errorLine prefixes classified failures with their code so scripts driving
// the pipeline can tell bad input from a failed tool run
func errorLine(err error) string {
	if code := errors.GetCode(err); code != "UNKNOWN" {
		return fmt.Sprintf("morphocv: %s: %v", code, err)
	}
	return fmt.Sprintf("morphocv: %v", err)
}
