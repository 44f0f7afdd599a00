package summary

import (
	"sort"
	"time"

	"github.com/ethpandaops/reportoor/pkg/record"
)

// DefaultMaxSlowTests is the default length of the slowest-tests ranking.
const DefaultMaxSlowTests = 3

// Source is the read-only view of a frozen record store.
type Source interface {
	Records() []*record.TestRecord
	NonTestErrors() []record.TestError
	HasInterruptedTests() bool
	StartedAt() time.Time
	EndedAt() time.Time
}

// TestTiming is a passed test's duration, used for slow-test reporting.
type TestTiming struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Suite           string  `json:"suite"`
	File            string  `json:"file,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Slow            bool    `json:"slow"`
}

// Metrics are the counts and timings derived from a frozen store.
type Metrics struct {
	TestCount                    int          `json:"test_count"`
	PassedCount                  int          `json:"passed_count"`
	FailedCount                  int          `json:"failed_count"`
	SkippedCount                 int          `json:"skipped_count"`
	FlakyCount                   int          `json:"flaky_count"`
	AveragePassedDurationSeconds float64      `json:"average_passed_duration_seconds"`
	SlowestTests                 []TestTiming `json:"slowest_tests"`
	SlowTestCount                int          `json:"slow_test_count"`
	TotalWallClockSeconds        float64      `json:"total_wall_clock_seconds"`
}

// Calculator derives Metrics. It holds no state between calls.
type Calculator struct {
	// MaxSlowTests is K for the slowest-tests ranking.
	MaxSlowTests int
	// SlowThreshold flags passed tests at or above this duration. Zero
	// disables flagging.
	SlowThreshold time.Duration
}

// Compute derives the run metrics from src.
func (c Calculator) Compute(src Source) Metrics {
	records := src.Records()

	m := Metrics{
		TestCount:    len(records),
		SlowestTests: []TestTiming{},
	}

	var (
		passedTotal time.Duration
		passedRuns  int
		passed      = make([]TestTiming, 0, len(records))
	)

	for _, rec := range records {
		switch rec.FinalStatus() {
		case record.StatusPassed:
			m.PassedCount++

			if rec.RetryCount() > 0 {
				m.FlakyCount++
			}

			timing := c.timing(rec)
			if timing.Slow {
				m.SlowTestCount++
			}

			passed = append(passed, timing)
		case record.StatusFailed, record.StatusTimedOut:
			m.FailedCount++
		default:
			// Skipped and interrupted tests never completed.
			m.SkippedCount++
		}

		// Failed and timed out attempts are excluded; their durations are
		// dominated by retry and timeout noise.
		for _, a := range rec.Attempts() {
			if a.Status == record.StatusPassed {
				passedTotal += a.Duration
				passedRuns++
			}
		}
	}

	if passedRuns > 0 {
		m.AveragePassedDurationSeconds = passedTotal.Seconds() / float64(passedRuns)
	}

	// Stable so equal durations keep first-seen order.
	sort.SliceStable(passed, func(i, j int) bool {
		return passed[i].DurationSeconds > passed[j].DurationSeconds
	})

	k := c.MaxSlowTests
	if k <= 0 {
		k = DefaultMaxSlowTests
	}

	if len(passed) > k {
		passed = passed[:k]
	}

	m.SlowestTests = append(m.SlowestTests, passed...)

	if start, end := src.StartedAt(), src.EndedAt(); !start.IsZero() && end.After(start) {
		m.TotalWallClockSeconds = end.Sub(start).Seconds()
	}

	return m
}

func (c Calculator) timing(rec *record.TestRecord) TestTiming {
	d := rec.FinalAttempt().Duration

	return TestTiming{
		ID:              rec.ID(),
		Title:           rec.Identity().Title,
		Suite:           rec.Identity().Suite,
		File:            rec.Metadata().File,
		DurationSeconds: d.Seconds(),
		Slow:            c.SlowThreshold > 0 && d >= c.SlowThreshold,
	}
}
