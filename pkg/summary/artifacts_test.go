package summary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastRunStatus_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	prev, err := ReadLastRunStatus(dir)
	require.NoError(t, err)
	assert.Nil(t, prev)

	s := &RunSummary{Failures: []Failure{{TestID: "a"}, {TestID: "b"}}}
	require.NoError(t, WriteLastRunStatus(dir, NewLastRunStatus(false, s), nil))

	data, err := os.ReadFile(filepath.Join(dir, LastRunStatusFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"failed","failedTests":["a","b"]}`, string(data))

	got, err := ReadLastRunStatus(dir)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, []string{"a", "b"}, got.FailedTests)
}

func TestNewLastRunStatus_Passed(t *testing.T) {
	st := NewLastRunStatus(true, nil)
	assert.Equal(t, StatusPassed, st.Status)
	assert.NotNil(t, st.FailedTests)
	assert.Empty(t, st.FailedTests)
}

func TestReadLastRunStatus_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LastRunStatusFile), []byte("{"), 0o644))

	_, err := ReadLastRunStatus(dir)
	require.Error(t, err)
}

func TestRunSummary_WriteRead(t *testing.T) {
	dir := t.TempDir()

	s := &RunSummary{
		Metrics:  Metrics{TestCount: 2, PassedCount: 1, FailedCount: 1, SlowestTests: []TestTiming{}},
		Failures: []Failure{{TestID: "x", Category: "AssertionError"}},
	}

	require.NoError(t, WriteRunSummary(dir, s, nil))

	got, err := ReadRunSummary(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TestCount)
	assert.Equal(t, "x", got.Failures[0].TestID)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name       string
		prev       *LastRunStatus
		current    []string
		want       *Comparison
		hasChanges bool
	}{
		{
			name: "no previous run",
			prev: nil,
			want: nil,
		},
		{
			name:    "mixed",
			prev:    &LastRunStatus{Status: StatusFailed, FailedTests: []string{"a", "b"}},
			current: []string{"b", "c"},
			want: &Comparison{
				PreviousStatus: StatusFailed,
				NewFailures:    []string{"c"},
				StillFailing:   []string{"b"},
				Recovered:      []string{"a"},
			},
			hasChanges: true,
		},
		{
			name:    "unchanged",
			prev:    &LastRunStatus{Status: StatusFailed, FailedTests: []string{"a"}},
			current: []string{"a"},
			want: &Comparison{
				PreviousStatus: StatusFailed,
				NewFailures:    []string{},
				StillFailing:   []string{"a"},
				Recovered:      []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RunSummary{}
			for _, id := range tt.current {
				s.Failures = append(s.Failures, Failure{TestID: id})
			}

			got := Compare(tt.prev, s)
			assert.Equal(t, tt.want, got)

			if got != nil {
				assert.Equal(t, tt.hasChanges, got.HasChanges())
			}
		})
	}
}
