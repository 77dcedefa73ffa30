package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/listing"
)

var phase1Regions []string

var phase1Cmd = &cobra.Command{
	Use:   "phase1",
	Short: "List schools of the given regions and write Phase 1 files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		regions, err := selectRegions(phase1Regions)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, pipelineOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		var failed int
		for _, region := range regions {
			if ctx.Err() != nil {
				zap.L().Warn("phase 1 cancelled", zap.String("next_region", region.Name))
				break
			}
			res, err := env.Lister.Extract(ctx, region)
			if err != nil {
				failed++
				zap.L().Error("phase 1 failed", zap.String("region", region.Name), zap.Error(err))
				continue
			}
			path, err := env.Writer.WriteListing(region, res.Records)
			if err != nil {
				return eris.Wrapf(err, "write phase 1 file for %s", region.Name)
			}
			if failures := res.Failures(); len(failures) > 0 {
				if err := env.Writer.MarkIncomplete(path, failures); err != nil {
					return eris.Wrapf(err, "mark phase 1 file for %s", region.Name)
				}
			}
			formatListingResult(os.Stdout, res, path)
		}
		if failed > 0 {
			return eris.Errorf("phase 1 failed for %d of %d regions", failed, len(regions))
		}
		return nil
	},
}

func init() {
	phase1Cmd.Flags().StringSliceVar(&phase1Regions, "region", nil, "region(s) to list (default: whole catalog)")
	rootCmd.AddCommand(phase1Cmd)
}

// formatListingResult writes the per-sub-region outcome of one region.
func formatListingResult(out io.Writer, res *listing.Result, path string) {
	_, _ = fmt.Fprintf(out, "%s: %d records, %d skipped items -> %s\n",
		res.Region.Name, len(res.Records), res.SkippedItems, path)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  SUB-REGION\tRECORDS\tPAGES\tENDED\tERROR")
	for _, s := range res.SubRegions {
		errMsg := ""
		if s.Err != nil {
			errMsg = s.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "  %s\t%d\t%d\t%s\t%s\n",
			s.SubRegion.Name, s.Records, s.Pages, s.Reason, errMsg)
	}
	_ = w.Flush()
}
