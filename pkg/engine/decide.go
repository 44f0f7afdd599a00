package engine

import (
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/exitcodes"
	"github.com/ethpandaops/reportoor/pkg/summary"
)

// DecisionInput is what the exit status depends on. Pipeline outcomes are
// not part of it.
type DecisionInput struct {
	TestCount     int
	Failures      int
	NonTestErrors int
	Interrupted   bool
}

// Decision is the terminal success signal of a run.
type Decision struct {
	Success  bool     `json:"success"`
	ExitCode int      `json:"exit_code"`
	Reasons  []string `json:"reasons,omitempty"`
}

// DecisionInputFrom extracts the decider input from a run. s is nil when
// no tests were discovered; setup errors and interruption then come from
// src.
func DecisionInputFrom(s *summary.RunSummary, src summary.Source) DecisionInput {
	if s == nil {
		return DecisionInput{
			NonTestErrors: len(src.NonTestErrors()),
			Interrupted:   src.HasInterruptedTests(),
		}
	}

	return DecisionInput{
		TestCount:     s.TestCount,
		Failures:      len(s.Failures),
		NonTestErrors: len(s.NonTestErrors),
		Interrupted:   s.Interrupted,
	}
}

// Decide computes the exit status: success iff at least one test ran and
// there were no failures, setup or teardown errors or interruptions.
func Decide(in DecisionInput) Decision {
	var reasons []string

	if in.TestCount == 0 {
		reasons = append(reasons, "no tests discovered")
	}

	if in.Failures > 0 {
		reasons = append(reasons, fmt.Sprintf("%d test(s) failed", in.Failures))
	}

	if in.NonTestErrors > 0 {
		reasons = append(reasons, fmt.Sprintf("%d setup/teardown error(s)", in.NonTestErrors))
	}

	if in.Interrupted {
		reasons = append(reasons, "run was interrupted")
	}

	if len(reasons) > 0 {
		return Decision{ExitCode: exitcodes.TestFailure, Reasons: reasons}
	}

	return Decision{Success: true, ExitCode: exitcodes.Success}
}
