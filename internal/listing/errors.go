package listing

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrUnusableItem marks a result item with no name, no code and no link.
var ErrUnusableItem = eris.New("listing: item has no name, code or link")

// ErrNoSubRegions is reported when a region enumerates to nothing.
var ErrNoSubRegions = eris.New("listing: region has no sub-regions")

// RegionEnumerationError aborts a region's Phase 1: its sub-regions could
// not be listed within the retry budget.
type RegionEnumerationError struct {
	Region string
	Err    error
}

func (e *RegionEnumerationError) Error() string {
	return fmt.Sprintf("listing: enumerate sub-regions of %s: %v", e.Region, e.Err)
}

func (e *RegionEnumerationError) Unwrap() error { return e.Err }

// PaginationStuckWarning reports a page whose results repeat an earlier
// page. Pagination stops there and the repeated records are not emitted.
type PaginationStuckWarning struct {
	SubRegion string
	Page      int
	RepeatOf  int
}

func (w PaginationStuckWarning) Error() string {
	return fmt.Sprintf("listing: %s page %d repeats page %d", w.SubRegion, w.Page, w.RepeatOf)
}
