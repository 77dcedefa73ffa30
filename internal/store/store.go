// Package store is the run ledger: one row per finished run holding the
// run summary, on SQLite by default or Postgres.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/schoolscrape/internal/model"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	// FailedOnly keeps runs with at least one failed region.
	FailedOnly bool `json:"failed_only,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// Store defines the persistence interface for run summaries.
type Store interface {
	// SaveRun inserts or replaces the run with summary.ID.
	SaveRun(ctx context.Context, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.RunSummary, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}

// runRow is the denormalized form of a summary shared by both drivers.
type runRow struct {
	id         string
	startedAt  string
	finishedAt string
	regions    int
	succeeded  int
	failed     int
	pending    int
	cancelled  bool
	summary    []byte
}

func toRow(s *model.RunSummary) (runRow, error) {
	if s == nil || s.ID == "" {
		return runRow{}, eris.New("store: run summary has no id")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return runRow{}, eris.Wrap(err, "store: marshal summary")
	}
	return runRow{
		id:         s.ID,
		startedAt:  s.StartedAt.UTC().Format(timeLayout),
		finishedAt: s.FinishedAt.UTC().Format(timeLayout),
		regions:    len(s.Regions),
		succeeded:  s.Succeeded(),
		failed:     s.Failed(),
		pending:    s.Pending(),
		cancelled:  s.Cancelled,
		summary:    raw,
	}, nil
}

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func decodeSummary(raw []byte) (*model.RunSummary, error) {
	var s model.RunSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal summary")
	}
	return &s, nil
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
