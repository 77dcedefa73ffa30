// Package batch runs Phase 2 in fixed-size batches. Each batch is flushed
// to its own file before the next one starts, so a flushed file is a
// checkpoint and a rerun with resume enabled skips it.
package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/model"
)

// DefaultSize is the number of schools per batch.
const DefaultSize = 50

// Batch is one slice of the eligible records. Number is 1-based.
type Batch struct {
	Number  int
	Records []model.ListingRecord
}

// Links returns the detail-page links of the batch in order. They identify
// which schools a flushed batch file holds.
func (b Batch) Links() []string {
	out := make([]string, len(b.Records))
	for i, r := range b.Records {
		out[i] = strings.TrimSpace(r.KnowMoreLink)
	}
	return out
}

// Partition keeps only records eligible for detail extraction, in
// discovery order, and splits them into batches of size.
func Partition(records []model.ListingRecord, size int) []Batch {
	if size <= 0 {
		size = DefaultSize
	}
	var eligible []model.ListingRecord
	for _, r := range records {
		if r.EligibleForDetail() {
			eligible = append(eligible, r)
		}
	}

	var out []Batch
	for start := 0; start < len(eligible); start += size {
		end := min(start+size, len(eligible))
		out = append(out, Batch{Number: len(out) + 1, Records: eligible[start:end]})
	}
	return out
}

// Enricher turns one listing record into a detail record. It reports
// failures on the record, never as an error.
type Enricher interface {
	Extract(ctx context.Context, listing model.ListingRecord) model.DetailRecord
}

// Sink persists flushed batches. FindBatch only reports a file holding
// exactly the given links.
type Sink interface {
	WriteBatch(region model.Region, n int, recs []model.DetailRecord) (string, error)
	FindBatch(ctx context.Context, region model.Region, n int, links []string) (string, bool)
}

// Publisher receives each flushed batch. Its failures are logged only.
type Publisher interface {
	Publish(ctx context.Context, region model.Region, recs []model.DetailRecord) error
}

// Config tunes the scheduler.
type Config struct {
	Size   int
	Resume bool
}

// Outcome describes one batch.
type Outcome struct {
	Number   int
	Records  int
	Path     string
	Skipped  bool
	Statuses map[model.ExtractionStatus]int
	Err      error
}

// Result is the Phase 2 outcome of one region.
type Result struct {
	Region    model.Region
	Eligible  int
	Processed int
	Batches   []Outcome
	Statuses  map[model.ExtractionStatus]int
	Cancelled bool
}

// FlushError reports batches whose file could not be written.
type FlushError struct {
	Region string
	Failed []Outcome
}

func (e *FlushError) Error() string {
	nums := make([]string, len(e.Failed))
	for i, o := range e.Failed {
		nums[i] = fmt.Sprint(o.Number)
	}
	return fmt.Sprintf("batch: %s: flush failed for batch(es) %s", e.Region, strings.Join(nums, ", "))
}

func (e *FlushError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, o := range e.Failed {
		errs[i] = o.Err
	}
	return errs
}

// Scheduler drives the detail extractor over batches.
type Scheduler struct {
	enricher Enricher
	sink     Sink
	pub      Publisher
	cfg      Config
	log      *zap.Logger
}

// New creates a Scheduler. pub may be nil.
func New(enricher Enricher, sink Sink, pub Publisher, cfg Config) *Scheduler {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	return &Scheduler{
		enricher: enricher,
		sink:     sink,
		pub:      pub,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "batch")),
	}
}

// Run processes every eligible record of region. Cancelling ctx stops the
// run before the next batch; the batch in flight completes and is
// flushed. Flush failures do not stop later batches and are returned
// together as a *FlushError.
func (s *Scheduler) Run(ctx context.Context, region model.Region, records []model.ListingRecord) (*Result, error) {
	log := s.log.With(zap.String("region", region.Name))
	batches := Partition(records, s.cfg.Size)
	work := context.WithoutCancel(ctx)

	res := &Result{Region: region, Statuses: make(map[model.ExtractionStatus]int)}
	for _, b := range batches {
		res.Eligible += len(b.Records)
	}
	log.Info("phase 2 starting",
		zap.Int("records", len(records)),
		zap.Int("eligible", res.Eligible),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", s.cfg.Size),
	)

	var failed []Outcome
	for _, b := range batches {
		if ctx.Err() != nil {
			log.Warn("cancelled between batches", zap.Int("next_batch", b.Number), zap.Int("batches", len(batches)))
			res.Cancelled = true
			break
		}

		if s.cfg.Resume {
			if path, ok := s.sink.FindBatch(work, region, b.Number, b.Links()); ok {
				log.Info("batch already flushed, skipping", zap.Int("batch", b.Number), zap.String("path", path))
				res.Batches = append(res.Batches, Outcome{Number: b.Number, Records: len(b.Records), Path: path, Skipped: true})
				continue
			}
		}

		out := s.runBatch(work, region, b)
		res.Batches = append(res.Batches, out)
		res.Processed += out.Records
		for st, n := range out.Statuses {
			res.Statuses[st] += n
		}
		if out.Err != nil {
			log.Error("batch flush failed", zap.Int("batch", b.Number), zap.Error(out.Err))
			failed = append(failed, out)
			continue
		}
		log.Info("batch complete",
			zap.Int("batch", b.Number),
			zap.Int("records", out.Records),
			zap.Int("success", out.Statuses[model.StatusSuccess]),
			zap.Int("partial", out.Statuses[model.StatusPartial]),
			zap.Int("failed", out.Statuses[model.StatusFailed]),
		)
	}

	if len(failed) > 0 {
		return res, &FlushError{Region: region.Name, Failed: failed}
	}
	if res.Cancelled {
		return res, eris.Wrap(ctx.Err(), "batch: phase 2 cancelled")
	}
	return res, nil
}

func (s *Scheduler) runBatch(ctx context.Context, region model.Region, b Batch) Outcome {
	out := Outcome{Number: b.Number, Records: len(b.Records), Statuses: make(map[model.ExtractionStatus]int)}
	details := make([]model.DetailRecord, 0, len(b.Records))
	for _, rec := range b.Records {
		d := s.enricher.Extract(ctx, rec)
		out.Statuses[d.Status]++
		details = append(details, d)
	}

	path, err := s.sink.WriteBatch(region, b.Number, details)
	if err != nil {
		out.Err = eris.Wrapf(err, "batch: flush batch %d", b.Number)
		return out
	}
	out.Path = path

	if s.pub != nil {
		if err := s.pub.Publish(ctx, region, details); err != nil {
			s.log.Warn("publish failed", zap.String("region", region.Name), zap.Int("batch", b.Number), zap.Error(err))
		}
	}
	return out
}
