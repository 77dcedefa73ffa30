package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/batch"
	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/output"
)

var (
	phase2Region string
	phase2File   string
	phase2Resume bool
)

var phase2Cmd = &cobra.Command{
	Use:   "phase2",
	Short: "Enrich a region's Phase 1 file with detail pages, in batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if phase2Region == "" && phase2File == "" {
			return eris.New("phase2 needs --region or --file")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, pipelineOptions{Phase2: true, Resume: phase2Resume})
		if err != nil {
			return err
		}
		defer env.Close()

		region, records, err := loadPhase1(ctx, env.Writer, phase2Region, phase2File)
		if err != nil {
			return err
		}

		res, runErr := env.Scheduler.Run(ctx, region, records)
		if res != nil {
			formatBatchResult(os.Stdout, res)
		}
		return runErr
	},
}

func init() {
	phase2Cmd.Flags().StringVar(&phase2Region, "region", "", "region whose newest Phase 1 file is enriched")
	phase2Cmd.Flags().StringVar(&phase2File, "file", "", "explicit Phase 1 file to enrich")
	phase2Cmd.Flags().BoolVar(&phase2Resume, "resume", false, "skip batches already flushed")
	rootCmd.AddCommand(phase2Cmd)
}

// loadPhase1 resolves the Phase 1 input. An explicit file wins; its
// region is taken from --region when given, else from its first record.
func loadPhase1(ctx context.Context, w *output.Writer, regionName, file string) (model.Region, []model.ListingRecord, error) {
	var region model.Region
	if regionName != "" {
		regions, err := selectRegions([]string{regionName})
		if err != nil {
			return region, nil, err
		}
		region = regions[0]
	}

	path := file
	if path == "" {
		found, ok := w.FindListing(region)
		if !ok {
			return region, nil, eris.Errorf("no phase 1 file for %s in %s; run phase1 first", region.Name, w.Dir())
		}
		path = found
	}

	if w.Incomplete(path) {
		zap.L().Warn("phase 1 file has failed sub-regions; rerun phase1 to cover them",
			zap.String("path", path), zap.String("marker", path+output.IncompleteSuffix))
	}

	records, err := w.ReadListing(ctx, path)
	if err != nil {
		return region, nil, err
	}
	if region.Name == "" {
		if len(records) == 0 || model.IsNA(records[0].State) {
			return region, nil, eris.Errorf("cannot tell the region of %s; pass --region", path)
		}
		region = model.Region{Name: records[0].State, ID: records[0].StateID}
	}
	return region, records, nil
}

// formatBatchResult writes one line per batch followed by the status
// histogram.
func formatBatchResult(out io.Writer, res *batch.Result) {
	_, _ = fmt.Fprintf(out, "%s: %d eligible, %d processed\n", res.Region.Name, res.Eligible, res.Processed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  BATCH\tRECORDS\tSTATE\tFILE")
	for _, b := range res.Batches {
		state := "written"
		switch {
		case b.Skipped:
			state = "resumed"
		case b.Err != nil:
			state = "flush failed"
		}
		_, _ = fmt.Fprintf(w, "  %d\t%d\t%s\t%s\n", b.Number, b.Records, state, b.Path)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "SUCCESS %d, PARTIAL %d, FAILED %d\n",
		res.Statuses[model.StatusSuccess], res.Statuses[model.StatusPartial], res.Statuses[model.StatusFailed])
	if res.Cancelled {
		_, _ = fmt.Fprintln(out, "Cancelled; rerun with --resume to continue.")
	}
}
