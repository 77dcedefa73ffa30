// Package orchestrator runs the two extraction phases region by region, in
// catalog order, and produces the run summary. A failing region is
// recorded and the loop moves on; already written files are never touched.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/batch"
	"github.com/sells-group/schoolscrape/internal/listing"
	"github.com/sells-group/schoolscrape/internal/model"
)

// StatusLogName is the per-run status log written next to the output files.
const StatusLogName = "run_status.csv"

var statusLogHeader = []string{
	"run_id", "region", "status", "reason", "listing_records",
	"eligible", "detail_records", "resumed_phase1", "failed_sub_regions",
	"elapsed_seconds", "finished_at",
}

// Lister runs Phase 1 for one region.
type Lister interface {
	Extract(ctx context.Context, region model.Region) (*listing.Result, error)
}

// Enricher runs Phase 2 over one region's listing records.
type Enricher interface {
	Run(ctx context.Context, region model.Region, records []model.ListingRecord) (*batch.Result, error)
}

// Files is the persistence the orchestrator needs.
type Files interface {
	Dir() string
	WriteListing(region model.Region, recs []model.ListingRecord) (string, error)
	FindListing(region model.Region) (string, bool)
	ReadListing(ctx context.Context, path string) ([]model.ListingRecord, error)
	MarkIncomplete(path string, failures []model.SubRegionFailure) error
	Incomplete(path string) bool
	AppendRow(path string, header, row []string) error
}

// Ledger records finished runs.
type Ledger interface {
	SaveRun(ctx context.Context, summary *model.RunSummary) error
}

// Config tunes a run.
type Config struct {
	// Resume reuses an existing Phase 1 file instead of re-listing a region.
	Resume bool
	// SkipPhase2 stops every region at phase1_done.
	SkipPhase2 bool
}

// Orchestrator drives the region loop.
type Orchestrator struct {
	lister   Lister
	enricher Enricher
	files    Files
	ledger   Ledger
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
}

// New creates an Orchestrator. enricher may be nil when cfg.SkipPhase2 is
// set, and ledger may be nil.
func New(lister Lister, enricher Enricher, files Files, ledger Ledger, cfg Config) *Orchestrator {
	return &Orchestrator{
		lister:   lister,
		enricher: enricher,
		files:    files,
		ledger:   ledger,
		cfg:      cfg,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "orchestrator")),
	}
}

// Run processes regions in order. Cancelling ctx stops the loop before the
// next region; regions not reached stay pending. The returned summary is
// complete even when some regions failed.
func (o *Orchestrator) Run(ctx context.Context, regions []model.Region) (*model.RunSummary, error) {
	if o.enricher == nil && !o.cfg.SkipPhase2 {
		return nil, eris.New("orchestrator: phase 2 requested without an enricher")
	}

	summary := &model.RunSummary{ID: uuid.New().String(), StartedAt: o.now()}
	log := o.log.With(zap.String("run_id", summary.ID))
	log.Info("run starting",
		zap.Int("regions", len(regions)),
		zap.Bool("resume", o.cfg.Resume),
		zap.Bool("skip_phase2", o.cfg.SkipPhase2),
	)

	state := NewRunState(regions)
	for i := range regions {
		if ctx.Err() != nil {
			log.Warn("run cancelled between regions", zap.Int("not_attempted", len(regions)-i))
			summary.Cancelled = true
			break
		}
		o.runRegion(ctx, state, i)
		o.appendStatus(summary.ID, state.Outcome(i))
	}

	summary.Regions = state.Outcomes()
	summary.FinishedAt = o.now()
	o.logSummary(log, summary)

	if o.ledger != nil {
		if err := o.ledger.SaveRun(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
	}
	return summary, nil
}

func (o *Orchestrator) runRegion(ctx context.Context, state *RunState, i int) {
	out := state.Outcome(i)
	region := out.Region
	start := o.now()
	log := o.log.With(zap.String("region", region.Name), zap.Int("position", i+1), zap.Int("of", state.Len()))
	defer func() { out.Elapsed = o.now().Sub(start) }()

	records, err := o.phase1(ctx, region, out)
	if err != nil {
		log.Error("phase 1 failed", zap.Error(err))
		o.transition(state, i, model.RegionFailedPhase1, err.Error())
		return
	}
	o.transition(state, i, model.RegionPhase1Done, "")
	out.ListingRecords = len(records)
	log.Info("phase 1 complete", zap.Int("records", len(records)), zap.Bool("resumed", out.ResumedPhase1))

	if o.cfg.SkipPhase2 {
		return
	}

	res, err := o.enricher.Run(ctx, region, records)
	if res != nil {
		out.Eligible = res.Eligible
		out.DetailRecords = res.Processed
		out.Statuses = res.Statuses
		for _, b := range res.Batches {
			if b.Path != "" {
				out.BatchFiles = append(out.BatchFiles, b.Path)
			}
		}
	}
	if err != nil {
		log.Error("phase 2 failed", zap.Error(err))
		o.transition(state, i, model.RegionFailedPhase2, err.Error())
		return
	}
	o.transition(state, i, model.RegionPhase2Done, "")
	log.Info("phase 2 complete",
		zap.Int("eligible", out.Eligible),
		zap.Int("detail_records", out.DetailRecords),
		zap.Int("batches", len(out.BatchFiles)),
	)
}

// phase1 returns the region's listing records, either re-read from an
// existing Phase 1 file or freshly extracted and written.
func (o *Orchestrator) phase1(ctx context.Context, region model.Region, out *model.RegionOutcome) ([]model.ListingRecord, error) {
	if o.cfg.Resume {
		if path, ok := o.files.FindListing(region); ok && o.files.Incomplete(path) {
			o.log.Info("existing phase 1 file has failed sub-regions, re-extracting",
				zap.String("region", region.Name), zap.String("path", path))
		} else if ok {
			records, err := o.files.ReadListing(ctx, path)
			if err == nil {
				out.Phase1File = path
				out.ResumedPhase1 = true
				return records, nil
			}
			o.log.Warn("existing phase 1 file unreadable, re-extracting",
				zap.String("region", region.Name), zap.String("path", path), zap.Error(err))
		}
	}

	res, err := o.lister.Extract(ctx, region)
	if err != nil {
		return nil, err
	}
	out.FailedSubRegions = res.Failures()
	if n := len(res.SubRegions); n > 0 && len(out.FailedSubRegions) == n {
		return nil, eris.Errorf("orchestrator: all %d sub-regions of %s failed", n, region.Name)
	}

	path, err := o.files.WriteListing(region, res.Records)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: write phase 1 file")
	}
	out.Phase1File = path
	if len(out.FailedSubRegions) > 0 {
		if err := o.files.MarkIncomplete(path, out.FailedSubRegions); err != nil {
			return nil, eris.Wrap(err, "orchestrator: mark phase 1 file incomplete")
		}
	}
	return res.Records, nil
}

func (o *Orchestrator) transition(state *RunState, i int, next model.RegionStatus, reason string) {
	if err := state.Transition(i, next, reason); err != nil {
		o.log.Error("run state", zap.Error(err))
	}
}

func (o *Orchestrator) appendStatus(runID string, out *model.RegionOutcome) {
	row := []string{
		runID,
		out.Region.Name,
		string(out.Status),
		out.Reason,
		strconv.Itoa(out.ListingRecords),
		strconv.Itoa(out.Eligible),
		strconv.Itoa(out.DetailRecords),
		strconv.FormatBool(out.ResumedPhase1),
		out.SubRegionNotes(),
		fmt.Sprintf("%.1f", out.Elapsed.Seconds()),
		o.now().Format(time.RFC3339),
	}
	path := filepath.Join(o.files.Dir(), StatusLogName)
	if err := o.files.AppendRow(path, statusLogHeader, row); err != nil {
		o.log.Warn("failed to append status log", zap.String("path", path), zap.Error(err))
	}
}

func (o *Orchestrator) logSummary(log *zap.Logger, s *model.RunSummary) {
	fields := []zap.Field{
		zap.Int("regions", len(s.Regions)),
		zap.Int("succeeded", s.Succeeded()),
		zap.Int("failed", s.Failed()),
		zap.Int("pending", s.Pending()),
		zap.Int("failed_sub_regions", s.SubRegionFailures()),
		zap.Float64("success_rate", s.SuccessRate()),
		zap.Duration("elapsed", s.Elapsed()),
		zap.Bool("cancelled", s.Cancelled),
	}
	for st, n := range s.Statuses() {
		fields = append(fields, zap.Int("detail_"+string(st), n))
	}
	log.Info("run complete", fields...)
	for _, name := range s.FailedNames() {
		log.Warn("region failed", zap.String("region", name), zap.String("reason", s.Failures()[name]))
	}
	for _, r := range s.Regions {
		for _, f := range r.FailedSubRegions {
			log.Warn("sub-region failed",
				zap.String("region", r.Region.Name), zap.String("sub_region", f.Name), zap.String("reason", f.Reason))
		}
	}
}
