// Command coron3 runs the level-3 coronagraphic calibration pipeline over an
// association of exposures.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TrystanKoch/jwst/internal/provenance"
	"github.com/TrystanKoch/jwst/internal/steps"
	"github.com/TrystanKoch/jwst/pkg/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coron3",
		Short:         "Level-3 coronagraphic calibration pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())

	return root
}

type runFlags struct {
	outputDir    string
	concurrency  int
	graphFile    string
	provenanceDB string
	klipModes    int
	outlierSigma float64
	verbose      bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <association.json>",
		Short: "Process one coronagraphic association",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "directory for every persisted product")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", 1, "maximum parallel target branches")
	cmd.Flags().StringVar(&flags.graphFile, "graph-file", "", "write the run's stage graph as DOT to this path")
	cmd.Flags().StringVar(&flags.provenanceDB, "provenance-db", "", "record runs in this sqlite database")
	cmd.Flags().IntVar(&flags.klipModes, "klip-modes", 0, "KL modes retained by the klip step (0 = all)")
	cmd.Flags().Float64Var(&flags.outlierSigma, "outlier-sigma", steps.DefaultOutlierSigma, "outlier clipping threshold in sigma")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(cmd *cobra.Command, asnPath string, flags *runFlags) error {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithConcurrency(flags.concurrency),
	}
	if flags.outputDir != "" {
		opts = append(opts, pipeline.WithOutputDir(flags.outputDir))
	}
	if flags.graphFile != "" {
		opts = append(opts, pipeline.WithGraphFile(flags.graphFile))
	}
	if flags.provenanceDB != "" {
		recorder, err := provenance.Open(flags.provenanceDB)
		if err != nil {
			return err
		}
		defer recorder.Close() //nolint:errcheck
		opts = append(opts, pipeline.WithRecorder(recorder))
	}

	pipe, err := pipeline.New(pipeline.Steps{
		StackRefs: steps.StackRefs{},
		AlignRefs: steps.AlignRefs{},
		Klip:      steps.Klip{Modes: flags.klipModes},
		Outliers:  steps.OutlierDetection{Sigma: flags.outlierSigma},
		Resample:  steps.Resample{},
	}, opts...)
	if err != nil {
		return err
	}

	report, err := pipe.Process(cmd.Context(), asnPath)
	if err != nil {
		return err
	}
	if report.Status == pipeline.StatusAborted {
		// Aborting over an incomplete association is not a failure.
		fmt.Fprintf(cmd.OutOrStdout(), "run %s aborted: %s\n", report.ID, report.AbortReason)

		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s completed: %d products\n", report.ID, len(report.Products))

	return nil
}
