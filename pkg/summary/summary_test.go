package summary

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethpandaops/reportoor/pkg/buildinfo"
	"github.com/ethpandaops/reportoor/pkg/classify"
	"github.com/ethpandaops/reportoor/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type attemptSpec struct {
	status   record.Status
	duration time.Duration
	message  string
}

type testSpec struct {
	suite    string
	title    string
	file     string
	attempts []attemptSpec
}

func newFrozenStore(t *testing.T, wall time.Duration, tests ...testSpec) *record.Store {
	t.Helper()

	store := record.NewStore()
	require.NoError(t, store.Begin(runStart, record.RunInfo{Workers: 2}))

	for _, ts := range tests {
		for _, a := range ts.attempts {
			attempt := record.Attempt{Status: a.status, Duration: a.duration}
			if a.message != "" {
				attempt.Errors = []record.TestError{{Message: a.message, Stack: "at spec.ts:1"}}
			}

			require.NoError(t, store.Append(
				record.Identity{Suite: ts.suite, Title: ts.title},
				record.Metadata{File: ts.file},
				attempt,
			))
		}
	}

	require.NoError(t, store.Freeze(runStart.Add(wall)))

	return store
}

func passing(title string, d time.Duration) testSpec {
	return testSpec{
		suite:    "suite",
		title:    title,
		file:     "tests/" + title + ".spec.ts",
		attempts: []attemptSpec{{status: record.StatusPassed, duration: d}},
	}
}

type fakeBuildInfo struct {
	info *buildinfo.Info
	err  error
}

func (f *fakeBuildInfo) Collect(context.Context) (*buildinfo.Info, error) {
	return f.info, f.err
}

func TestCalculator_AllPassing(t *testing.T) {
	store := newFrozenStore(t, 10*time.Second,
		passing("one", time.Second),
		passing("two", 2*time.Second),
		passing("three", 3*time.Second),
	)

	m := Calculator{MaxSlowTests: 3}.Compute(store)

	assert.Equal(t, 3, m.TestCount)
	assert.Equal(t, 3, m.PassedCount)
	assert.Equal(t, 0, m.FailedCount)
	assert.InDelta(t, 2.0, m.AveragePassedDurationSeconds, 1e-9)
	assert.InDelta(t, 10.0, m.TotalWallClockSeconds, 1e-9)

	require.Len(t, m.SlowestTests, 3)

	got := make([]float64, 0, 3)
	for _, s := range m.SlowestTests {
		got = append(got, s.DurationSeconds)
	}

	assert.Equal(t, []float64{3, 2, 1}, got)
}

func TestCalculator_CountInvariant(t *testing.T) {
	store := newFrozenStore(t, time.Minute,
		passing("pass", time.Second),
		testSpec{suite: "s", title: "fail", attempts: []attemptSpec{{status: record.StatusFailed, message: "boom"}}},
		testSpec{suite: "s", title: "timeout", attempts: []attemptSpec{{status: record.StatusTimedOut}}},
		testSpec{suite: "s", title: "skip", attempts: []attemptSpec{{status: record.StatusSkipped}}},
		testSpec{suite: "s", title: "interrupted", attempts: []attemptSpec{{status: record.StatusInterrupted}}},
		testSpec{suite: "s", title: "flaky", attempts: []attemptSpec{
			{status: record.StatusFailed, duration: 5 * time.Second, message: "expected true"},
			{status: record.StatusPassed, duration: 3 * time.Second},
		}},
	)

	m := Calculator{}.Compute(store)

	assert.Equal(t, 6, m.TestCount)
	assert.Equal(t, 2, m.PassedCount)
	assert.Equal(t, 2, m.FailedCount)
	assert.Equal(t, 2, m.SkippedCount)
	assert.Equal(t, m.TestCount, m.PassedCount+m.FailedCount+m.SkippedCount)
	assert.Equal(t, 1, m.FlakyCount)

	// Only passed attempts: (1s + 3s) / 2.
	assert.InDelta(t, 2.0, m.AveragePassedDurationSeconds, 1e-9)
}

func TestCalculator_SlowestTests(t *testing.T) {
	tests := []struct {
		name      string
		k         int
		threshold time.Duration
		wantIDs   []string
		wantSlow  int
	}{
		{
			name:    "default k",
			wantIDs: []string{"suite > d", "suite > b", "suite > c"},
		},
		{
			name:    "k larger than passed tests",
			k:       10,
			wantIDs: []string{"suite > d", "suite > b", "suite > c", "suite > a"},
		},
		{
			name:      "threshold flags slow tests",
			k:         1,
			threshold: 2 * time.Second,
			wantIDs:   []string{"suite > d"},
			wantSlow:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFrozenStore(t, time.Minute,
				passing("a", time.Second),
				passing("b", 2*time.Second),
				passing("c", 2*time.Second),
				passing("d", 4*time.Second),
			)

			m := Calculator{MaxSlowTests: tt.k, SlowThreshold: tt.threshold}.Compute(store)

			ids := make([]string, 0, len(m.SlowestTests))
			for _, s := range m.SlowestTests {
				ids = append(ids, s.ID)
			}

			// b and c tie; b was seen first.
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantSlow, m.SlowTestCount)
		})
	}
}

func TestBuildFailures_UsesFinalAttempt(t *testing.T) {
	store := newFrozenStore(t, time.Minute,
		testSpec{suite: "checkout", title: "pays", file: "checkout.spec.ts", attempts: []attemptSpec{
			{status: record.StatusFailed, duration: time.Second, message: "expect(received).toBe(expected)"},
			{status: record.StatusTimedOut, duration: 30 * time.Second, message: "Test timeout of 30000ms exceeded"},
		}},
	)

	failures := BuildFailures(store.Records())
	require.Len(t, failures, 1)

	f := failures[0]
	assert.Equal(t, "checkout > pays", f.TestID)
	assert.Equal(t, "pays", f.TestTitle)
	assert.Equal(t, "checkout", f.SuiteTitle)
	assert.Equal(t, "Test timeout of 30000ms exceeded", f.ErrorMessage)
	assert.Equal(t, classify.TimeoutError, f.Category)
	assert.True(t, f.IsTimeout)
	assert.Equal(t, 1, f.Retries)
	assert.InDelta(t, 30.0, f.DurationSeconds, 1e-9)
	assert.Equal(t, "checkout.spec.ts", f.TestFile)
}

func TestBuilder_TimeoutFailure(t *testing.T) {
	store := newFrozenStore(t, time.Minute,
		passing("ok", time.Second),
		testSpec{suite: "suite", title: "slow", attempts: []attemptSpec{
			{status: record.StatusFailed, duration: time.Second, message: "page.goto: timeout 5000ms exceeded"},
		}},
	)

	b := &Builder{Calculator: Calculator{MaxSlowTests: 3}}

	s, err := b.Build(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, s.FailedCount)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, classify.TimeoutError, s.Failures[0].Category)
	assert.Equal(t, []string{"suite > slow"}, s.FailedIDs())
}

func TestBuilder_NoTests(t *testing.T) {
	store := newFrozenStore(t, time.Second)

	s, err := (&Builder{}).Build(context.Background(), store)
	require.ErrorIs(t, err, ErrNoTests)
	assert.Nil(t, s)
}

func TestBuilder_Deterministic(t *testing.T) {
	store := newFrozenStore(t, time.Minute,
		passing("a", time.Second),
		passing("b", time.Second),
		testSpec{suite: "suite", title: "c", attempts: []attemptSpec{{status: record.StatusFailed, message: "locator not visible"}}},
	)

	b := &Builder{
		Calculator: Calculator{MaxSlowTests: 2},
		BuildInfo:  &fakeBuildInfo{info: &buildinfo.Info{Commit: "abc"}},
	}

	first, err := b.Build(context.Background(), store)
	require.NoError(t, err)

	second, err := b.Build(context.Background(), store)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)

	c, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(c))
}

func TestBuilder_BuildInfo(t *testing.T) {
	store := newFrozenStore(t, time.Minute, passing("a", time.Second))

	t.Run("attached", func(t *testing.T) {
		b := &Builder{BuildInfo: &fakeBuildInfo{info: &buildinfo.Info{Branch: "main"}}}

		s, err := b.Build(context.Background(), store)
		require.NoError(t, err)
		require.NotNil(t, s.Build)
		assert.Equal(t, "main", s.Build.Branch)
	})

	t.Run("collector error is ignored", func(t *testing.T) {
		b := &Builder{BuildInfo: &fakeBuildInfo{err: errors.New("no ci")}}

		s, err := b.Build(context.Background(), store)
		require.NoError(t, err)
		assert.Nil(t, s.Build)
	})
}

func TestRunSummary_SkippedRatio(t *testing.T) {
	s := &RunSummary{Metrics: Metrics{TestCount: 10, SkippedCount: 3}}
	assert.InDelta(t, 0.3, s.SkippedRatio(), 1e-9)

	assert.Zero(t, (&RunSummary{}).SkippedRatio())
}
