package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/schoolscrape/internal/model"
)

// ConsolidateOptions tunes Consolidate.
type ConsolidateOptions struct {
	// XLSX also writes an .xlsx copy of each merged file.
	XLSX bool
	// Concurrency bounds how many regions are merged at once. Default: 4.
	Concurrency int
}

// Consolidated describes one region's merged Phase 2 output.
type Consolidated struct {
	Region  model.Region
	CSV     string
	XLSX    string
	Batches int
	Rows    int
}

// Consolidate merges each region's newest batch files into a single
// Phase 2 file, in batch order. Regions without batch files are skipped.
// Results are returned in the order of regions.
func (w *Writer) Consolidate(ctx context.Context, regions []model.Region, opts ConsolidateOptions) ([]Consolidated, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	results := make([]*Consolidated, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, region := range regions {
		g.Go(func() error {
			c, err := w.consolidateRegion(gctx, region, opts)
			if err != nil {
				return eris.Wrapf(err, "output: consolidate %s", region.Name)
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Consolidated
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (w *Writer) consolidateRegion(ctx context.Context, region model.Region, opts ConsolidateOptions) (*Consolidated, error) {
	files, err := w.BatchFiles(region)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	var rows [][]string
	for _, path := range files {
		batch, err := readAligned(ctx, path, model.DetailColumns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}

	ts := w.now()
	c := &Consolidated{
		Region:  region,
		CSV:     filepath.Join(w.dir, ConsolidatedName(region, ts)),
		Batches: len(files),
		Rows:    len(rows),
	}
	if err := writeAtomic(c.CSV, model.DetailColumns, rows); err != nil {
		return nil, err
	}
	if opts.XLSX {
		c.XLSX = strings.TrimSuffix(c.CSV, ".csv") + ".xlsx"
		if err := WriteXLSX(c.XLSX, model.DetailColumns, rows); err != nil {
			return nil, err
		}
	}

	w.log.Info("region consolidated",
		zap.String("region", region.Name),
		zap.Int("batches", c.Batches),
		zap.Int("rows", c.Rows),
		zap.String("path", c.CSV),
	)
	return c, nil
}

// readAligned reads a CSV file and reorders each row to columns by
// header name. Columns the file lacks are filled with NA.
func readAligned(ctx context.Context, path string, columns []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: open %s", path)
	}
	defer func() { _ = f.Close() }()

	header, rows, err := readTable(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "output: read %s", path)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	out := make([][]string, len(rows))
	for r, row := range rows {
		aligned := make([]string, len(columns))
		for c, col := range columns {
			if i, ok := idx[col]; ok && i < len(row) {
				aligned[c] = row[i]
			} else {
				aligned[c] = model.NA
			}
		}
		out[r] = aligned
	}
	return out, nil
}
