// Package output persists extraction results as CSV files: one Phase 1
// file per region and one Phase 2 file per batch. Files are written to a
// temporary name and renamed into place, so a file that exists is complete.
package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/model"
)

// TimestampLayout is the timestamp embedded in output file names.
const TimestampLayout = "20060102_150405"

// Writer reads and writes the output files of one data directory.
type Writer struct {
	dir string
	now func() time.Time
	log *zap.Logger
}

// NewWriter creates the data directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "output: create dir %s", dir)
	}
	return &Writer{
		dir: dir,
		now: time.Now,
		log: zap.L().With(zap.String("component", "output")),
	}, nil
}

// Dir returns the data directory.
func (w *Writer) Dir() string { return w.dir }

// ListingName is the Phase 1 file name for region at ts.
func ListingName(region model.Region, ts time.Time) string {
	return fmt.Sprintf("%s_phase1_complete_%s.csv", region.Slug(), ts.Format(TimestampLayout))
}

// BatchName is the Phase 2 file name for batch n (1-based) of region at ts.
func BatchName(region model.Region, n int, ts time.Time) string {
	return fmt.Sprintf("%s_phase2_batch%d_%s.csv", region.Slug(), n, ts.Format(TimestampLayout))
}

// ConsolidatedName is the merged Phase 2 file name for region at ts.
func ConsolidatedName(region model.Region, ts time.Time) string {
	return fmt.Sprintf("%s_phase2_complete_%s.csv", region.Slug(), ts.Format(TimestampLayout))
}

// FileExists reports whether path exists as a regular file.
func (w *Writer) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// AppendRow appends one row to the CSV file at path, writing header first
// when the file is new or empty.
func (w *Writer) AppendRow(path string, header, row []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "output: open %s", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "output: stat %s", path)
	}
	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(header); err != nil {
			return eris.Wrap(err, "output: write header")
		}
	}
	if err := cw.Write(row); err != nil {
		return eris.Wrap(err, "output: write row")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrapf(err, "output: flush %s", path)
	}
	return nil
}

// WriteListing writes region's Phase 1 file and returns its path. An
// empty record set still produces a header-only file.
func (w *Writer) WriteListing(region model.Region, recs []model.ListingRecord) (string, error) {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = r.Row()
	}
	path := filepath.Join(w.dir, ListingName(region, w.now()))
	if err := writeAtomic(path, model.ListingColumns, rows); err != nil {
		return "", err
	}
	if err := os.Remove(path + IncompleteSuffix); err != nil && !os.IsNotExist(err) {
		return "", eris.Wrapf(err, "output: clear stale marker of %s", path)
	}
	w.log.Info("phase 1 file written", zap.String("region", region.Name), zap.String("path", path), zap.Int("rows", len(rows)))
	return path, nil
}

// WriteBatch writes batch n (1-based) of region's Phase 2 results.
func (w *Writer) WriteBatch(region model.Region, n int, recs []model.DetailRecord) (string, error) {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = r.Row()
	}
	path := filepath.Join(w.dir, BatchName(region, n, w.now()))
	if err := writeAtomic(path, model.DetailColumns, rows); err != nil {
		return "", err
	}
	w.log.Info("phase 2 batch written",
		zap.String("region", region.Name), zap.Int("batch", n), zap.String("path", path), zap.Int("rows", len(rows)))
	return path, nil
}

// IncompleteSuffix marks the sidecar listing the failed sub-regions of a
// Phase 1 file.
const IncompleteSuffix = ".incomplete"

var incompleteHeader = []string{"sub_region_id", "sub_region", "reason"}

// MarkIncomplete records next to the Phase 1 file at path which
// sub-regions failed, so resume re-lists the region instead of reusing it.
func (w *Writer) MarkIncomplete(path string, failures []model.SubRegionFailure) error {
	rows := make([][]string, len(failures))
	for i, f := range failures {
		rows[i] = []string{f.ID, f.Name, f.Reason}
	}
	if err := writeAtomic(path+IncompleteSuffix, incompleteHeader, rows); err != nil {
		return err
	}
	w.log.Warn("phase 1 file incomplete", zap.String("path", path), zap.Int("failed_sub_regions", len(failures)))
	return nil
}

// Incomplete reports whether the Phase 1 file at path lacks sub-regions.
func (w *Writer) Incomplete(path string) bool {
	return w.FileExists(path + IncompleteSuffix)
}

// FindListing returns the newest Phase 1 file of region.
func (w *Writer) FindListing(region model.Region) (string, bool) {
	return w.newest(region.Slug() + "_phase1_complete_*.csv")
}

// FindBatch returns the newest file for batch n of region whose rows are
// exactly links, in order. Batch numbers restart with every Phase 1 file,
// so a batch written from an older listing never matches a newer one.
func (w *Writer) FindBatch(ctx context.Context, region model.Region, n int, links []string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(w.dir, fmt.Sprintf("%s_phase2_batch%d_*.csv", region.Slug(), n)))
	if err != nil {
		return "", false
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for _, path := range matches {
		got, err := w.batchLinks(ctx, path)
		if err != nil {
			w.log.Warn("batch file unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		if slices.Equal(got, links) {
			return path, true
		}
		w.log.Debug("batch file belongs to another listing", zap.String("path", path), zap.Int("rows", len(got)))
	}
	return "", false
}

func (w *Writer) batchLinks(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: open %s", path)
	}
	defer func() { _ = f.Close() }()

	header, rows, err := readTable(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "output: read %s", path)
	}
	col := slices.Index(header, "know_more_link")
	if col < 0 {
		return nil, eris.Errorf("output: %s has no know_more_link column", path)
	}
	links := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			links = append(links, row[col])
		}
	}
	return links, nil
}

// BatchFiles returns the newest file of every batch of region, ordered by
// batch number.
func (w *Writer) BatchFiles(region model.Region) ([]string, error) {
	prefix := region.Slug() + "_phase2_batch"
	matches, err := filepath.Glob(filepath.Join(w.dir, prefix+"*_*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "output: glob batch files")
	}
	sort.Strings(matches)

	latest := make(map[int]string)
	for _, m := range matches {
		rest := strings.TrimPrefix(filepath.Base(m), prefix)
		num, _, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		latest[n] = m // matches are sorted, so the newest timestamp wins
	}

	nums := make([]int, 0, len(latest))
	for n := range latest {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = latest[n]
	}
	return out, nil
}

// ReadListing reads a Phase 1 file. Eligibility flags are recomputed from
// each row's link.
func (w *Writer) ReadListing(ctx context.Context, path string) ([]model.ListingRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: open %s", path)
	}
	defer func() { _ = f.Close() }()

	header, rows, err := readTable(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "output: read %s", path)
	}
	if len(header) == 0 {
		return nil, eris.Errorf("output: %s has no header", path)
	}
	recs := make([]model.ListingRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, model.ListingFromRow(header, row))
	}
	return recs, nil
}

func (w *Writer) newest(pattern string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(w.dir, pattern))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}

// writeAtomic writes a CSV file under a temporary name in the same
// directory and renames it into place.
func writeAtomic(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return eris.Wrapf(err, "output: create temp for %s", path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "output: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "output: write rows to %s", path)
	}
	if err := tmp.Sync(); err != nil {
		return eris.Wrapf(err, "output: sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "output: close %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "output: rename into %s", path)
	}
	committed = true
	return nil
}
