// Package summary derives the immutable run summary from a frozen record
// store and persists the run-level artifacts.
package summary

import (
	"context"
	"errors"
	"time"

	"github.com/ethpandaops/reportoor/pkg/buildinfo"
	"github.com/ethpandaops/reportoor/pkg/record"
)

// ErrNoTests is returned when the run discovered no tests at all.
var ErrNoTests = errors.New("no tests discovered")

// RunSummary is the aggregate result of a run. It is built once and never
// mutated afterwards.
type RunSummary struct {
	Metrics

	Failures      []Failure          `json:"failures"`
	NonTestErrors []record.TestError `json:"non_test_errors,omitempty"`
	Interrupted   bool               `json:"interrupted"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       time.Time          `json:"ended_at"`
	Run           record.RunInfo     `json:"run"`
	Build         *buildinfo.Info    `json:"build,omitempty"`
}

// SkippedRatio is the fraction of tests that were skipped.
func (s *RunSummary) SkippedRatio() float64 {
	if s.TestCount == 0 {
		return 0
	}

	return float64(s.SkippedCount) / float64(s.TestCount)
}

// HasErrors reports whether the run had failures, setup or teardown errors,
// or interrupted tests.
func (s *RunSummary) HasErrors() bool {
	return len(s.Failures) > 0 || len(s.NonTestErrors) > 0 || s.Interrupted
}

// FailedIDs returns the test ids of every failure in order.
func (s *RunSummary) FailedIDs() []string {
	ids := make([]string, 0, len(s.Failures))
	for _, f := range s.Failures {
		ids = append(ids, f.TestID)
	}

	return ids
}

// InfoSource is the part of the store that exposes run metadata.
type InfoSource interface {
	Source
	Info() record.RunInfo
}

// Builder assembles RunSummary values.
type Builder struct {
	Calculator Calculator
	BuildInfo  buildinfo.Provider
}

// Build derives the summary from a frozen store. It returns ErrNoTests when
// the store is empty; callers must not run the post-run pipeline then.
func (b *Builder) Build(ctx context.Context, src InfoSource) (*RunSummary, error) {
	records := src.Records()
	if len(records) == 0 {
		return nil, ErrNoTests
	}

	s := &RunSummary{
		Metrics:       b.Calculator.Compute(src),
		Failures:      BuildFailures(records),
		NonTestErrors: src.NonTestErrors(),
		Interrupted:   src.HasInterruptedTests(),
		StartedAt:     src.StartedAt().UTC(),
		EndedAt:       src.EndedAt().UTC(),
		Run:           src.Info(),
	}

	if len(s.NonTestErrors) == 0 {
		s.NonTestErrors = nil
	}

	if b.BuildInfo != nil {
		info, err := b.BuildInfo.Collect(ctx)
		if err == nil {
			s.Build = info
		}
	}

	return s, nil
}
