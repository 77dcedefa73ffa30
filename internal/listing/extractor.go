// Package listing implements Phase 1: enumerate a region's sub-regions,
// run one search per sub-region, and walk every result page into
// ListingRecords.
package listing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

// Site is the portal surface Phase 1 needs. *portal.Portal satisfies it.
type Site interface {
	Pager
	SubRegions(ctx context.Context, region model.Region) ([]model.SubRegion, error)
	PrepareRegion(ctx context.Context, region model.Region) error
	SearchReady(ctx context.Context) (bool, error)
	Search(ctx context.Context, sub model.SubRegion) error
	SetPageSize(ctx context.Context, n int) error
	ResolveLink(href string) string
}

// Config tunes the extractor.
type Config struct {
	// PortalPolicy governs sub-region enumeration, searches and page loads.
	PortalPolicy resilience.Policy
	// NextPolicy governs reading and clicking the next-page control.
	NextPolicy resilience.Policy
	// PageSize is requested once per search, best effort. Zero skips it.
	PageSize int
	// MaxPages caps pages per sub-region. Default: 200.
	MaxPages int
}

// SubRegionOutcome records how one sub-region's extraction ended.
type SubRegionOutcome struct {
	SubRegion model.SubRegion
	Records   int
	Pages     int
	Reason    ExhaustReason
	Stuck     *PaginationStuckWarning
	Err       error
}

// Result is the output of one region's Phase 1.
type Result struct {
	Region       model.Region
	Records      []model.ListingRecord
	SubRegions   []SubRegionOutcome
	SkippedItems int
}

// Failed returns the sub-regions that ended with an error.
func (r *Result) Failed() []SubRegionOutcome {
	var out []SubRegionOutcome
	for _, s := range r.SubRegions {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Failures returns the failed sub-regions with their reasons, in
// sub-region order.
func (r *Result) Failures() []model.SubRegionFailure {
	var out []model.SubRegionFailure
	for _, s := range r.Failed() {
		out = append(out, model.SubRegionFailure{ID: s.SubRegion.ID, Name: s.SubRegion.Name, Reason: s.Err.Error()})
	}
	return out
}

// Extractor runs Phase 1 for one region at a time.
type Extractor struct {
	site Site
	cfg  Config
	now  func() time.Time
	log  *zap.Logger
}

// New creates an Extractor over site.
func New(site Site, cfg Config) *Extractor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	return &Extractor{
		site: site,
		cfg:  cfg,
		now:  time.Now,
		log:  zap.L().With(zap.String("component", "listing")),
	}
}

// Extract collects every listing record of region, in sub-region order,
// then page order, then on-page order. A failing sub-region is recorded
// in the result and the next one proceeds. Only a failure to enumerate
// sub-regions fails the region, as a *RegionEnumerationError.
//
// A started region always runs to completion: cancellation is only honored
// between regions, so a Phase 1 result never silently lacks sub-regions.
func (e *Extractor) Extract(ctx context.Context, region model.Region) (*Result, error) {
	log := e.log.With(zap.String("region", region.Name))
	work := context.WithoutCancel(ctx)

	subs, err := resilience.DoVal(work, e.cfg.PortalPolicy, e.site, "enumerate sub-regions",
		func(ctx context.Context) ([]model.SubRegion, error) {
			return e.site.SubRegions(ctx, region)
		})
	if err == nil && len(subs) == 0 {
		err = ErrNoSubRegions
	}
	if err != nil {
		return nil, &RegionEnumerationError{Region: region.Name, Err: err}
	}
	log.Info("sub-regions enumerated", zap.Int("count", len(subs)))

	res := &Result{Region: region}
	for i, sub := range subs {
		out := e.extractSubRegion(work, region, sub, i > 0, res)
		res.SubRegions = append(res.SubRegions, out)

		fields := []zap.Field{
			zap.String("sub_region", sub.Name),
			zap.Int("records", out.Records),
			zap.Int("pages", out.Pages),
			zap.String("reason", string(out.Reason)),
		}
		if out.Err != nil {
			log.Warn("sub-region failed", append(fields, zap.Error(out.Err))...)
		} else {
			log.Info("sub-region complete", fields...)
		}
	}

	log.Info("region listing complete",
		zap.Int("records", len(res.Records)),
		zap.Int("sub_regions", len(res.SubRegions)),
		zap.Int("failed_sub_regions", len(res.Failed())),
		zap.Int("skipped_items", res.SkippedItems),
	)
	return res, nil
}

func (e *Extractor) extractSubRegion(ctx context.Context, region model.Region, sub model.SubRegion, reset bool, res *Result) SubRegionOutcome {
	out := SubRegionOutcome{SubRegion: sub}
	prepare := resilience.ReloaderFunc(func(ctx context.Context) error {
		return e.site.PrepareRegion(ctx, region)
	})

	if reset {
		if ok, _ := e.site.SearchReady(ctx); !ok {
			if err := resilience.Do(ctx, e.cfg.PortalPolicy, prepare, "prepare region", prepare); err != nil {
				out.Err = err
				return out
			}
		}
	}

	if err := resilience.Do(ctx, e.cfg.PortalPolicy, prepare, "search sub-region", func(ctx context.Context) error {
		return e.site.Search(ctx, sub)
	}); err != nil {
		out.Err = err
		return out
	}

	if e.cfg.PageSize > 0 {
		if err := e.site.SetPageSize(ctx, e.cfg.PageSize); err != nil {
			e.log.Debug("page size not applied", zap.String("sub_region", sub.Name), zap.Error(err))
		}
	}

	pager := NewPaginator(e.site, e.cfg.PortalPolicy, e.cfg.NextPolicy, e.cfg.MaxPages, sub.Name)
	pr, err := pager.Run(ctx, func(p Page) error {
		for _, item := range p.Items {
			rec, err := ParseItem(item, e.site.ResolveLink)
			if err != nil {
				if !errors.Is(err, ErrUnusableItem) {
					e.log.Debug("item not parsed", zap.String("sub_region", sub.Name), zap.Int("page", p.Number), zap.Error(err))
				}
				res.SkippedItems++
				continue
			}
			rec.State = region.Name
			rec.StateID = region.ID
			rec.District = sub.Name
			rec.DistrictID = sub.ID
			rec.Page = p.Number
			rec.ExtractionDate = e.now()
			rec.Finalize()
			res.Records = append(res.Records, rec)
			out.Records++
		}
		return nil
	})
	out.Pages = pr.Pages
	out.Reason = pr.Reason
	out.Stuck = pr.Stuck
	out.Err = err
	return out
}
