package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing and viewing recorded extraction runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		failedOnly, _ := cmd.Flags().GetBool("failed")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{FailedOnly: failedOnly, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}
		formatRunDetail(os.Stdout, run)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Bool("failed", false, "only runs with at least one failed region")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the stored summary as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tREGIONS\tOK\tFAILED\tPENDING\tDURATION\tNOTE")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t--\t------\t-------\t--------\t----")

	for _, r := range runs {
		note := ""
		if r.Cancelled {
			note = "cancelled"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			len(r.Regions),
			r.Succeeded(),
			r.Failed(),
			r.Pending(),
			r.Elapsed().Round(time.Second).String(),
			note,
		)
	}
	_ = w.Flush()
}

// formatRunDetail writes the per-region outcome of one run, the detail
// status histogram and the failure reasons.
func formatRunDetail(out io.Writer, s *model.RunSummary) {
	_, _ = fmt.Fprintf(out, "Run %s\nStarted %s, took %s\n\n",
		s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Elapsed().Round(time.Second))
	formatRunSummary(out, s)

	hist := s.Statuses()
	if len(hist) > 0 {
		keys := make([]string, 0, len(hist))
		for st := range hist {
			keys = append(keys, string(st))
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "\nDETAIL STATUS\tRECORDS")
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", k, hist[model.ExtractionStatus(k)])
		}
		_ = w.Flush()
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
