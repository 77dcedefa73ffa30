package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/monitoring"
	"github.com/sells-group/schoolscrape/internal/orchestrator"
)

var (
	runRegions    []string
	runResume     bool
	runSkipPhase2 bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run Phase 1 and Phase 2 for each region in catalog order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		regions, err := selectRegions(runRegions)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, pipelineOptions{
			Phase2: !runSkipPhase2,
			Resume: runResume,
			Ledger: true,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		var enricher orchestrator.Enricher
		if env.Scheduler != nil {
			enricher = env.Scheduler
		}
		orch := orchestrator.New(env.Lister, enricher, env.Writer, env.Store, orchestrator.Config{
			Resume:     runResume,
			SkipPhase2: runSkipPhase2,
		})

		summary, err := orch.Run(ctx, regions)
		if err != nil {
			return err
		}
		formatRunSummary(os.Stdout, summary)

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerter.SendAlerts(context.WithoutCancel(ctx), alerter.Evaluate(summary))
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runRegions, "region", nil, "region(s) to process (default: whole catalog)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "reuse existing Phase 1 files and flushed batches")
	runCmd.Flags().BoolVar(&runSkipPhase2, "skip-phase2", false, "stop after Phase 1")
	rootCmd.AddCommand(runCmd)
}

// formatRunSummary writes one line per region followed by the totals.
func formatRunSummary(out io.Writer, s *model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tSTATUS\tLISTED\tELIGIBLE\tDETAILED\tELAPSED\tREASON")
	for _, r := range s.Regions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Region.Name,
			r.Status,
			r.ListingRecords,
			r.Eligible,
			r.DetailRecords,
			r.Elapsed.Round(time.Second),
			r.Reason,
		)
	}
	_ = w.Flush()

	if n := s.SubRegionFailures(); n > 0 {
		_, _ = fmt.Fprintf(out, "\nFailed sub-regions (%d):\n", n)
		for _, r := range s.Regions {
			for _, f := range r.FailedSubRegions {
				_, _ = fmt.Fprintf(out, "  %s / %s: %s\n", r.Region.Name, f.Name, f.Reason)
			}
		}
	}

	_, _ = fmt.Fprintf(out, "\nRun %s: %d succeeded, %d failed, %d pending (%.1f%% success)\n",
		truncateID(s.ID), s.Succeeded(), s.Failed(), s.Pending(), s.SuccessRate())
	switch {
	case s.Cancelled:
		_, _ = fmt.Fprintln(out, "Run was cancelled; rerun with --resume to continue.")
	case s.SubRegionFailures() > 0:
		_, _ = fmt.Fprintln(out, "Rerun with --resume to re-list regions with failed sub-regions.")
	}
}
