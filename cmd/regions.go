package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/schoolscrape/internal/model"
)

var regionsLive bool

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the region catalog in processing order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		regions, err := selectRegions(nil)
		if err != nil {
			return err
		}
		if !regionsLive {
			formatRegions(os.Stdout, regions, nil)
			return nil
		}

		env, err := initPipeline(ctx, pipelineOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Portal.Open(ctx); err != nil {
			return eris.Wrap(err, "regions")
		}
		live, err := env.Portal.Regions(ctx)
		if err != nil {
			return eris.Wrap(err, "regions")
		}
		formatRegions(os.Stdout, regions, live)
		return nil
	},
}

func init() {
	regionsCmd.Flags().BoolVar(&regionsLive, "live", false, "compare the catalog against the portal's region dropdown")
	rootCmd.AddCommand(regionsCmd)
}

// formatRegions writes the catalog. When live is non-nil each entry is
// marked with whether the portal offers it, and portal regions missing
// from the catalog are listed after.
func formatRegions(out io.Writer, catalog, live []model.Region) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if live == nil {
		_, _ = fmt.Fprintln(w, "#\tREGION\tFILE PREFIX")
		for i, r := range catalog {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Name, r.Slug())
		}
		_ = w.Flush()
		return
	}

	onPortal := make(map[string]model.Region, len(live))
	for _, r := range live {
		onPortal[r.Slug()] = r
	}
	inCatalog := make(map[string]bool, len(catalog))

	_, _ = fmt.Fprintln(w, "#\tREGION\tFILE PREFIX\tPORTAL ID")
	for i, r := range catalog {
		inCatalog[r.Slug()] = true
		id := "missing"
		if p, ok := onPortal[r.Slug()]; ok {
			id = p.ID
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, r.Name, r.Slug(), id)
	}
	for _, r := range live {
		if !inCatalog[r.Slug()] {
			_, _ = fmt.Fprintf(w, "-\t%s\t%s\t%s\n", r.Name, r.Slug(), r.ID)
		}
	}
	_ = w.Flush()
}
