package engine

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidTransition is returned for a run phase change the lifecycle
// does not allow.
var ErrInvalidTransition = errors.New("invalid run state transition")

// Phase is a stage of the run lifecycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseRunning     Phase = "running"
	PhaseCollecting  Phase = "collecting"
	PhaseAggregating Phase = "aggregating"
	PhasePublishing  Phase = "publishing"
	PhaseFinalized   Phase = "finalized"
)

// transitions lists the forward moves allowed from each phase. A run
// without attempts goes straight from running to aggregating, and a run
// without tests skips publishing.
var transitions = map[Phase][]Phase{
	PhaseIdle:        {PhaseRunning},
	PhaseRunning:     {PhaseCollecting, PhaseAggregating},
	PhaseCollecting:  {PhaseAggregating},
	PhaseAggregating: {PhasePublishing, PhaseFinalized},
	PhasePublishing:  {PhaseFinalized},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Phase) bool {
	return slices.Contains(transitions[from], to)
}

func transitionError(from, to Phase) error {
	return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
}
