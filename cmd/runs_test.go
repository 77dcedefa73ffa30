package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/output"
)

func sampleRun() model.RunSummary {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	return model.RunSummary{
		ID:         "abc12345-6789-0000-0000-000000000000",
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Hour),
		Regions: []model.RegionOutcome{
			{
				Region:         model.Region{Name: "GOA", ID: "30"},
				Status:         model.RegionPhase2Done,
				ListingRecords: 120,
				Eligible:       118,
				DetailRecords:  118,
				Statuses:       map[model.ExtractionStatus]int{model.StatusSuccess: 110, model.StatusPartial: 8},
				Elapsed:        90 * time.Minute,
			},
			{
				Region: model.Region{Name: "KERALA", ID: "32"},
				Status: model.RegionFailedPhase1,
				Reason: "sub-region selector has no options",
			},
			{
				Region: model.Region{Name: "LADAKH", ID: "37"},
				Status: model.RegionPending,
			},
		},
	}
}

func TestFormatRunsList(t *testing.T) {
	run := sampleRun()
	cancelled := sampleRun()
	cancelled.ID = "def12345-6789-0000-0000-000000000000"
	cancelled.Cancelled = true

	var buf bytes.Buffer
	formatRunsList(&buf, []model.RunSummary{run, cancelled})

	got := buf.String()
	assert.Contains(t, got, "ID")
	assert.Contains(t, got, "PENDING")
	assert.Contains(t, got, "abc12345")
	assert.NotContains(t, got, "abc12345-6789")
	assert.Contains(t, got, "2025-06-15 10:30")
	assert.Contains(t, got, "2h0m0s")
	assert.Contains(t, got, "cancelled")
}

func TestFormatRunSummary(t *testing.T) {
	run := sampleRun()

	var buf bytes.Buffer
	formatRunSummary(&buf, &run)

	got := buf.String()
	assert.Contains(t, got, "GOA")
	assert.Contains(t, got, "phase2_done")
	assert.Contains(t, got, "1h30m0s")
	assert.Contains(t, got, "failed_phase1")
	assert.Contains(t, got, "sub-region selector has no options")
	assert.Contains(t, got, "1 succeeded, 1 failed, 1 pending (50.0% success)")
	assert.NotContains(t, got, "--resume")
	assert.NotContains(t, got, "Failed sub-regions")
}

func TestFormatRunSummary_SubRegionFailures(t *testing.T) {
	run := sampleRun()
	run.Regions[0].FailedSubRegions = []model.SubRegionFailure{
		{ID: "3002", Name: "SOUTH GOA", Reason: "search never returned results"},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, &run)

	got := buf.String()
	assert.Contains(t, got, "Failed sub-regions (1):")
	assert.Contains(t, got, "GOA / SOUTH GOA: search never returned results")
	assert.Contains(t, got, "re-list regions with failed sub-regions")
}

func TestFormatRunDetail(t *testing.T) {
	run := sampleRun()
	run.Cancelled = true

	var buf bytes.Buffer
	formatRunDetail(&buf, &run)

	got := buf.String()
	assert.Contains(t, got, run.ID)
	assert.Contains(t, got, "DETAIL STATUS")
	assert.Contains(t, got, "SUCCESS")
	assert.Contains(t, got, "110")
	assert.Contains(t, got, "--resume")
}

func TestFormatRegions(t *testing.T) {
	catalog := []model.Region{{Name: "ANDAMAN & NICOBAR ISLANDS"}, {Name: "GOA"}}

	var buf bytes.Buffer
	formatRegions(&buf, catalog, nil)
	assert.Contains(t, buf.String(), "ANDAMAN_AND_NICOBAR_ISLANDS")
	assert.NotContains(t, buf.String(), "PORTAL ID")

	buf.Reset()
	live := []model.Region{{Name: "Goa", ID: "30"}, {Name: "Ladakh", ID: "37"}}
	formatRegions(&buf, catalog, live)
	got := buf.String()
	assert.Contains(t, got, "PORTAL ID")
	assert.Contains(t, got, "missing")
	assert.Contains(t, got, "30")
	assert.Contains(t, got, "Ladakh")
}

func TestFormatConsolidated(t *testing.T) {
	var buf bytes.Buffer
	formatConsolidated(&buf, []output.Consolidated{
		{Region: model.Region{Name: "GOA"}, CSV: "GOA_phase2_complete.csv", XLSX: "GOA_phase2_complete.xlsx", Batches: 3, Rows: 120},
	})
	assert.Contains(t, buf.String(), "GOA_phase2_complete.csv, GOA_phase2_complete.xlsx")
	assert.Contains(t, buf.String(), "120")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
