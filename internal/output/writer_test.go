package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/schoolscrape/internal/model"
)

var goa = model.Region{Name: "GOA", ID: "30"}

func newTestWriter(t *testing.T, at time.Time) *Writer {
	t.Helper()
	w, err := NewWriter(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	w.now = func() time.Time { return at }
	return w
}

func listing(code, link string) model.ListingRecord {
	r := model.ListingRecord{UDISECode: code, SchoolName: "School " + code, State: "GOA", StateID: "30", Page: 1,
		ExtractionDate: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	r.Link(link)
	return r
}

func TestFileNames(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)
	an := model.Region{Name: "ANDAMAN & NICOBAR ISLANDS"}
	assert.Equal(t, "ANDAMAN_AND_NICOBAR_ISLANDS_phase1_complete_20250301_090507.csv", ListingName(an, ts))
	assert.Equal(t, "GOA_phase2_batch3_20250301_090507.csv", BatchName(goa, 3, ts))
	assert.Equal(t, "GOA_phase2_complete_20250301_090507.csv", ConsolidatedName(goa, ts))
}

func TestWriteAndReadListing(t *testing.T) {
	w := newTestWriter(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	recs := []model.ListingRecord{
		listing("3001", "https://kys.udiseplus.gov.in/#/school/1/1"),
		listing("3002", ""),
		listing("3003", "javascript:void(0)"),
	}

	path, err := w.WriteListing(goa, recs)
	require.NoError(t, err)
	assert.True(t, w.FileExists(path))
	assert.Equal(t, "GOA_phase1_complete_20250301_090000.csv", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "has_know_more_link,phase2_ready,udise_code"))

	got, err := w.ReadListing(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, recs, got)

	found, ok := w.FindListing(goa)
	require.True(t, ok)
	assert.Equal(t, path, found)

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadListing_RecomputesFlags(t *testing.T) {
	w := newTestWriter(t, time.Now())
	path := filepath.Join(w.Dir(), "edited.csv")
	content := "has_know_more_link,phase2_ready,udise_code,know_more_link\n" +
		"true,true,3001,N/A\n" +
		"false,false,3002,https://kys.udiseplus.gov.in/#/school/2/1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := w.ReadListing(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Phase2Ready)
	assert.False(t, got[0].HasKnowMoreLink)
	assert.True(t, got[1].Phase2Ready)
	assert.Equal(t, model.NA, got[1].SchoolName)
}

func TestWriteListing_EmptyRegionGetsHeader(t *testing.T) {
	w := newTestWriter(t, time.Now())
	path, err := w.WriteListing(goa, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(model.ListingColumns, ",")+"\n", string(raw))

	got, err := w.ReadListing(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindListing_NewestWins(t *testing.T) {
	w := newTestWriter(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	_, err := w.WriteListing(goa, nil)
	require.NoError(t, err)

	w.now = func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC) }
	newer, err := w.WriteListing(goa, nil)
	require.NoError(t, err)

	found, ok := w.FindListing(goa)
	require.True(t, ok)
	assert.Equal(t, newer, found)

	_, ok = w.FindListing(model.Region{Name: "GOA NORTH"})
	assert.False(t, ok)
}

func TestWriteBatchAndFind(t *testing.T) {
	w := newTestWriter(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	d := model.NewDetailRecord(listing("3001", "https://kys.udiseplus.gov.in/#/school/1/1"))
	d.Status = model.StatusSuccess

	for n := 1; n <= 10; n++ {
		_, err := w.WriteBatch(goa, n, []model.DetailRecord{d})
		require.NoError(t, err)
	}

	links := []string{"https://kys.udiseplus.gov.in/#/school/1/1"}
	p1, ok := w.FindBatch(context.Background(), goa, 1, links)
	require.True(t, ok)
	assert.Equal(t, "GOA_phase2_batch1_20250301_090000.csv", filepath.Base(p1))
	_, ok = w.FindBatch(context.Background(), goa, 11, links)
	assert.False(t, ok)
	_, ok = w.FindBatch(context.Background(), goa, 1, []string{"https://kys.udiseplus.gov.in/#/school/2/1"})
	assert.False(t, ok, "same batch number, different schools")

	files, err := w.BatchFiles(goa)
	require.NoError(t, err)
	require.Len(t, files, 10)
	assert.Contains(t, files[1], "batch2_")
	assert.Contains(t, files[9], "batch10_")
}

func TestFindBatch_SkipsNewerFileOfOtherListing(t *testing.T) {
	w := newTestWriter(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	mine := model.NewDetailRecord(listing("3001", "https://kys.udiseplus.gov.in/#/school/1/1"))
	older, err := w.WriteBatch(goa, 1, []model.DetailRecord{mine})
	require.NoError(t, err)

	w.now = func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC) }
	other := model.NewDetailRecord(listing("3002", "https://kys.udiseplus.gov.in/#/school/2/1"))
	_, err = w.WriteBatch(goa, 1, []model.DetailRecord{other})
	require.NoError(t, err)

	found, ok := w.FindBatch(context.Background(), goa, 1, []string{"https://kys.udiseplus.gov.in/#/school/1/1"})
	require.True(t, ok)
	assert.Equal(t, older, found)
}

func TestMarkIncomplete(t *testing.T) {
	w := newTestWriter(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	path, err := w.WriteListing(goa, nil)
	require.NoError(t, err)
	assert.False(t, w.Incomplete(path))

	require.NoError(t, w.MarkIncomplete(path, []model.SubRegionFailure{{ID: "3002", Name: "SOUTH GOA", Reason: "no results"}}))
	assert.True(t, w.Incomplete(path))

	raw, err := os.ReadFile(path + IncompleteSuffix)
	require.NoError(t, err)
	assert.Equal(t, "sub_region_id,sub_region,reason\n3002,SOUTH GOA,no results\n", string(raw))

	found, ok := w.FindListing(goa)
	require.True(t, ok)
	assert.Equal(t, path, found, "the marker is not a phase 1 file")

	_, err = w.WriteListing(goa, nil)
	require.NoError(t, err)
	assert.False(t, w.Incomplete(path), "rewriting the same file clears its marker")
}

func TestAppendRow(t *testing.T) {
	w := newTestWriter(t, time.Now())
	path := filepath.Join(w.Dir(), "log.csv")
	header := []string{"region", "status"}

	require.NoError(t, w.AppendRow(path, header, []string{"GOA", "phase2_done"}))
	require.NoError(t, w.AppendRow(path, header, []string{"BIHAR", "failed_phase1"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "region,status\nGOA,phase2_done\nBIHAR,failed_phase1\n", string(raw))
	assert.False(t, w.FileExists(w.Dir()))
}
