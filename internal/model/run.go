package model

import (
	"sort"
	"strings"
	"time"
)

// RegionStatus is the lifecycle state of one region within a run.
type RegionStatus string

const (
	RegionPending      RegionStatus = "pending"
	RegionPhase1Done   RegionStatus = "phase1_done"
	RegionPhase2Done   RegionStatus = "phase2_done"
	RegionFailedPhase1 RegionStatus = "failed_phase1"
	RegionFailedPhase2 RegionStatus = "failed_phase2"
)

var regionTransitions = map[RegionStatus][]RegionStatus{
	RegionPending:    {RegionPhase1Done, RegionFailedPhase1},
	RegionPhase1Done: {RegionPhase2Done, RegionFailedPhase2},
}

// CanTransition reports whether a region may move from s to next.
func (s RegionStatus) CanTransition(next RegionStatus) bool {
	for _, to := range regionTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Failed reports whether s is one of the failure states.
func (s RegionStatus) Failed() bool {
	return s == RegionFailedPhase1 || s == RegionFailedPhase2
}

// SubRegionFailure is a sub-region whose listing failed while its region
// carried on.
type SubRegionFailure struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RegionOutcome is what a run recorded for one region.
type RegionOutcome struct {
	Region           Region                   `json:"region"`
	Status           RegionStatus             `json:"status"`
	Reason           string                   `json:"reason,omitempty"`
	FailedSubRegions []SubRegionFailure       `json:"failed_sub_regions,omitempty"`
	ListingRecords   int                      `json:"listing_records"`
	Eligible         int                      `json:"eligible"`
	DetailRecords    int                      `json:"detail_records"`
	Statuses         map[ExtractionStatus]int `json:"statuses,omitempty"`
	Phase1File       string                   `json:"phase1_file,omitempty"`
	BatchFiles       []string                 `json:"batch_files,omitempty"`
	ResumedPhase1    bool                     `json:"resumed_phase1,omitempty"`
	Elapsed          time.Duration            `json:"elapsed"`
}

// SubRegionNotes renders FailedSubRegions as "NAME: reason" joined by "; ".
func (o RegionOutcome) SubRegionNotes() string {
	parts := make([]string, len(o.FailedSubRegions))
	for i, f := range o.FailedSubRegions {
		parts[i] = f.Name + ": " + f.Reason
	}
	return strings.Join(parts, "; ")
}

// RunSummary is the end-of-run report. It is persisted in the run ledger.
type RunSummary struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Cancelled  bool            `json:"cancelled"`
	Regions    []RegionOutcome `json:"regions"`
}

// Elapsed is the wall time of the run.
func (s RunSummary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Succeeded counts regions that completed every phase the run asked for.
// A Phase 1 only run leaves successful regions at phase1_done.
func (s RunSummary) Succeeded() int {
	return s.count(func(o RegionOutcome) bool {
		return o.Status == RegionPhase2Done || o.Status == RegionPhase1Done
	})
}

// Failed counts regions in a failure state.
func (s RunSummary) Failed() int { return s.count(func(o RegionOutcome) bool { return o.Status.Failed() }) }

// Pending counts regions never attempted.
func (s RunSummary) Pending() int { return s.count(func(o RegionOutcome) bool { return o.Status == RegionPending }) }

// Failures maps each failed region name to its reason.
func (s RunSummary) Failures() map[string]string {
	out := make(map[string]string)
	for _, o := range s.Regions {
		if o.Status.Failed() {
			out[o.Region.Name] = o.Reason
		}
	}
	return out
}

// SubRegionFailures counts failed sub-regions over all regions, including
// those of regions that otherwise succeeded.
func (s RunSummary) SubRegionFailures() int {
	n := 0
	for _, o := range s.Regions {
		n += len(o.FailedSubRegions)
	}
	return n
}

// Statuses is the detail-record status histogram over all regions.
func (s RunSummary) Statuses() map[ExtractionStatus]int {
	out := make(map[ExtractionStatus]int)
	for _, o := range s.Regions {
		for st, n := range o.Statuses {
			out[st] += n
		}
	}
	return out
}

// SuccessRate is succeeded regions over attempted regions, in percent.
func (s RunSummary) SuccessRate() float64 {
	attempted := len(s.Regions) - s.Pending()
	if attempted == 0 {
		return 0
	}
	return float64(s.Succeeded()) * 100 / float64(attempted)
}

// FailedNames returns the failed region names in sorted order.
func (s RunSummary) FailedNames() []string {
	var out []string
	for name := range s.Failures() {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s RunSummary) count(match func(RegionOutcome) bool) int {
	n := 0
	for _, o := range s.Regions {
		if match(o) {
			n++
		}
	}
	return n
}
