package summary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
)

const (
	// RunSummaryFile is the full summary artifact.
	RunSummaryFile = "run-summary.json"
	// LastRunStatusFile is the compact pass/fail artifact consumed by the
	// next run's comparison.
	LastRunStatusFile = "last-run-status.json"
)

// Run status values written to LastRunStatusFile.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// LastRunStatus is the compact result of a run.
type LastRunStatus struct {
	Status      string   `json:"status"`
	FailedTests []string `json:"failedTests"`
}

// WriteRunSummary persists s to dir/run-summary.json.
func WriteRunSummary(dir string, s *RunSummary, owner *fsutil.OwnerConfig) error {
	if err := fsutil.WriteJSON(filepath.Join(dir, RunSummaryFile), s, owner); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}

	return nil
}

// ReadRunSummary loads a previously written run summary.
func ReadRunSummary(dir string) (*RunSummary, error) {
	var s RunSummary
	if err := fsutil.ReadJSON(filepath.Join(dir, RunSummaryFile), &s); err != nil {
		return nil, fmt.Errorf("reading run summary: %w", err)
	}

	return &s, nil
}

// NewLastRunStatus builds the compact status for a decided run.
func NewLastRunStatus(success bool, s *RunSummary) LastRunStatus {
	st := LastRunStatus{
		Status:      StatusFailed,
		FailedTests: []string{},
	}

	if success {
		st.Status = StatusPassed
	}

	if s != nil {
		st.FailedTests = append(st.FailedTests, s.FailedIDs()...)
	}

	return st
}

// WriteLastRunStatus persists st to dir/last-run-status.json.
func WriteLastRunStatus(dir string, st LastRunStatus, owner *fsutil.OwnerConfig) error {
	if err := fsutil.WriteJSON(filepath.Join(dir, LastRunStatusFile), st, owner); err != nil {
		return fmt.Errorf("writing last run status: %w", err)
	}

	return nil
}

// ReadLastRunStatus loads the status of the previous run. It returns
// (nil, nil) when no previous status exists.
func ReadLastRunStatus(dir string) (*LastRunStatus, error) {
	var st LastRunStatus

	err := fsutil.ReadJSON(filepath.Join(dir, LastRunStatusFile), &st)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading last run status: %w", err)
	}

	return &st, nil
}
