package listing

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/portal"
	"github.com/sells-group/schoolscrape/internal/resilience"
)

// PageState is a state of the pagination controller.
type PageState int

const (
	Loading PageState = iota
	Ready
	Advancing
	Exhausted
	Stuck
)

func (s PageState) String() string {
	switch s {
	case Loading:
		return "LOADING"
	case Ready:
		return "READY"
	case Advancing:
		return "ADVANCING"
	case Exhausted:
		return "EXHAUSTED"
	case Stuck:
		return "STUCK"
	default:
		return "UNKNOWN"
	}
}

// ExhaustReason records why pagination stopped.
type ExhaustReason string

const (
	ReasonAbsent       ExhaustReason = "absent"
	ReasonDisabled     ExhaustReason = "disabled"
	ReasonUndetermined ExhaustReason = "undetermined"
	ReasonStuck        ExhaustReason = "stuck"
	ReasonMaxPages     ExhaustReason = "max_pages"
	ReasonEmpty        ExhaustReason = "empty"
)

// Pager is the part of the portal the pagination controller drives.
type Pager interface {
	WaitResults(ctx context.Context) (bool, error)
	Items(ctx context.Context) ([]browser.Element, error)
	NextControl(ctx context.Context) (portal.NextState, error)
	Advance(ctx context.Context) error
	Signature(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
}

// Page is one rendered result page.
type Page struct {
	Number int
	Items  []browser.Element
}

// PaginationResult summarizes one pagination run.
type PaginationResult struct {
	Pages  int
	Final  PageState
	Reason ExhaustReason
	Stuck  *PaginationStuckWarning
}

// Paginator walks result pages until the next control runs out, a page
// repeats, or MaxPages is reached. Reaching Stuck is reported as a
// warning and otherwise behaves like Exhausted.
type Paginator struct {
	pager      Pager
	loadPolicy resilience.Policy
	nextPolicy resilience.Policy
	maxPages   int
	label      string
	log        *zap.Logger
}

// NewPaginator creates a controller for one sub-region's results. label
// names the sub-region in logs and warnings.
func NewPaginator(pager Pager, loadPolicy, nextPolicy resilience.Policy, maxPages int, label string) *Paginator {
	if maxPages <= 0 {
		maxPages = 200
	}
	return &Paginator{
		pager:      pager,
		loadPolicy: loadPolicy,
		nextPolicy: nextPolicy,
		maxPages:   maxPages,
		label:      label,
		log:        zap.L().With(zap.String("component", "paginator"), zap.String("sub_region", label)),
	}
}

// Run drives the state machine, calling visit once per distinct page in
// order. An error means the current page could not be loaded or advanced
// past; pages visited before it stay visited.
func (p *Paginator) Run(ctx context.Context, visit func(Page) error) (PaginationResult, error) {
	var res PaginationResult
	seen := make(map[string]int)
	state := Loading
	page := 1

	for {
		switch state {
		case Loading:
			found, err := resilience.DoVal(ctx, p.loadPolicy, p.pager, "wait for results", p.pager.WaitResults)
			if err != nil {
				return res, eris.Wrapf(err, "listing: load page %d", page)
			}
			if !found {
				res.Reason = ReasonEmpty
				state = Exhausted
				continue
			}

			sig, err := p.pager.Signature(ctx)
			if err != nil {
				return res, eris.Wrapf(err, "listing: signature of page %d", page)
			}
			if prev, dup := seen[sig]; dup {
				w := PaginationStuckWarning{SubRegion: p.label, Page: page, RepeatOf: prev}
				p.log.Warn("pagination stuck, treating as exhausted", zap.Error(w))
				res.Stuck = &w
				res.Reason = ReasonStuck
				state = Stuck
				continue
			}
			seen[sig] = page

			items, err := p.pager.Items(ctx)
			if err != nil {
				return res, eris.Wrapf(err, "listing: read page %d", page)
			}
			res.Pages = page
			if err := visit(Page{Number: page, Items: items}); err != nil {
				return res, err
			}
			state = Ready

		case Ready:
			if page >= p.maxPages {
				p.log.Warn("page limit reached", zap.Int("max_pages", p.maxPages))
				res.Reason = ReasonMaxPages
				state = Exhausted
				continue
			}
			next, err := resilience.DoVal(ctx, p.nextPolicy, p.pager, "check next control", p.pager.NextControl)
			if err != nil {
				p.log.Warn("next control undeterminable, treating as exhausted", zap.Int("page", page), zap.Error(err))
				res.Reason = ReasonUndetermined
				state = Exhausted
				continue
			}
			switch next {
			case portal.NextEnabled:
				state = Advancing
			case portal.NextDisabled:
				res.Reason = ReasonDisabled
				state = Exhausted
			default:
				res.Reason = ReasonAbsent
				state = Exhausted
			}

		case Advancing:
			if err := resilience.Do(ctx, p.nextPolicy, p.pager, "advance page", p.pager.Advance); err != nil {
				return res, eris.Wrapf(err, "listing: advance past page %d", page)
			}
			page++
			state = Loading

		case Exhausted, Stuck:
			res.Final = state
			p.log.Debug("pagination finished",
				zap.Int("pages", res.Pages),
				zap.Stringer("state", state),
				zap.String("reason", string(res.Reason)),
			)
			return res, nil
		}
	}
}
