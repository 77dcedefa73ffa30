package orchestrator

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/schoolscrape/internal/model"
)

// RunState tracks every region of one run, in catalog order. It is owned
// by the Orchestrator and lives only for the duration of the run.
type RunState struct {
	outcomes []model.RegionOutcome
}

// NewRunState starts every region at pending.
func NewRunState(regions []model.Region) *RunState {
	s := &RunState{outcomes: make([]model.RegionOutcome, len(regions))}
	for i, r := range regions {
		s.outcomes[i] = model.RegionOutcome{Region: r, Status: model.RegionPending}
	}
	return s
}

// Transition moves region i to status next, recording reason for
// failure states. Illegal transitions are rejected.
func (s *RunState) Transition(i int, next model.RegionStatus, reason string) error {
	if i < 0 || i >= len(s.outcomes) {
		return eris.Errorf("orchestrator: region index %d out of range", i)
	}
	o := &s.outcomes[i]
	if !o.Status.CanTransition(next) {
		return eris.Errorf("orchestrator: %s: illegal transition %s -> %s", o.Region.Name, o.Status, next)
	}
	o.Status = next
	if next.Failed() {
		o.Reason = reason
	}
	return nil
}

// Outcome returns a pointer to region i's record so the orchestrator can
// fill in counts and file paths.
func (s *RunState) Outcome(i int) *model.RegionOutcome {
	return &s.outcomes[i]
}

// Status returns region i's current status.
func (s *RunState) Status(i int) model.RegionStatus {
	return s.outcomes[i].Status
}

// Len is the number of regions in the run.
func (s *RunState) Len() int { return len(s.outcomes) }

// Outcomes returns a copy of every region's record.
func (s *RunState) Outcomes() []model.RegionOutcome {
	out := make([]model.RegionOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}
