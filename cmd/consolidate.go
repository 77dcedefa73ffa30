package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/schoolscrape/internal/output"
)

var (
	consolidateRegions []string
	consolidateXLSX    bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge each region's Phase 2 batch files into one file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		regions, err := selectRegions(consolidateRegions)
		if err != nil {
			return err
		}
		w, err := output.NewWriter(cfg.Output.Dir)
		if err != nil {
			return err
		}

		merged, err := w.Consolidate(ctx, regions, output.ConsolidateOptions{
			XLSX: consolidateXLSX || cfg.Output.XLSX,
		})
		if err != nil {
			return err
		}
		if len(merged) == 0 {
			fmt.Fprintln(os.Stderr, "No batch files found.")
			return nil
		}
		formatConsolidated(os.Stdout, merged)
		return nil
	},
}

func init() {
	consolidateCmd.Flags().StringSliceVar(&consolidateRegions, "region", nil, "region(s) to merge (default: whole catalog)")
	consolidateCmd.Flags().BoolVar(&consolidateXLSX, "xlsx", false, "also write an .xlsx copy")
	rootCmd.AddCommand(consolidateCmd)
}

func formatConsolidated(out io.Writer, merged []output.Consolidated) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tBATCHES\tROWS\tFILE")
	for _, c := range merged {
		file := c.CSV
		if c.XLSX != "" {
			file += ", " + c.XLSX
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", c.Region.Name, c.Batches, c.Rows, file)
	}
	_ = w.Flush()
}
