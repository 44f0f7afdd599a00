// Package provider defines the collaborators the post-run pipeline calls
// out to and the typed error they report.
package provider

import (
	"context"
	"time"

	"github.com/ethpandaops/reportoor/pkg/summary"
)

// AIFixProvider generates fix suggestions from a prompt.
type AIFixProvider interface {
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// Priority of a filed bug.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// BugDetails is the payload for a new bug.
type BugDetails struct {
	Title       string
	Description string
	Priority    Priority
	Labels      []string
	Assignee    string
	TestID      string
	TestFile    string
}

// Bug is a created bug.
type Bug struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// BugTrackerProvider files bugs. De-duplication is the implementation's
// concern.
type BugTrackerProvider interface {
	CreateBug(ctx context.Context, details BugDetails) (*Bug, error)
}

// FileChange is a full-content replacement of a single file.
type FileChange struct {
	Path    string
	Content string
}

// PullRequestOptions describes a pull request to open.
type PullRequestOptions struct {
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
	Draft      bool
	Labels     []string
}

// PullRequest is an opened pull request.
type PullRequest struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// PRProvider creates branches, commits and pull requests.
type PRProvider interface {
	CreateBranch(ctx context.Context, name, base string) (bool, error)
	CommitChanges(ctx context.Context, branch string, files []FileChange, message string) (string, error)
	CreatePullRequest(ctx context.Context, opts PullRequestOptions) (*PullRequest, error)
}

// TestRun is the run row persisted by a DatabaseProvider.
type TestRun struct {
	StartedAt     time.Time
	EndedAt       time.Time
	Status        string
	TestCount     int
	PassedCount   int
	FailedCount   int
	SkippedCount  int
	FlakyCount    int
	DurationSecs  float64
	Commit        string
	Branch        string
	BuildID       string
	BuildURL      string
	RunnerVersion string
}

// TestResult is one per-test row linked to a run.
type TestResult struct {
	RunID        string
	TestID       string
	Title        string
	Suite        string
	File         string
	Status       string
	Retries      int
	DurationSecs float64
	ErrorMessage string
	Category     string
}

// DatabaseProvider persists run results.
type DatabaseProvider interface {
	SaveTestRun(ctx context.Context, run TestRun) (string, error)
	SaveTestResult(ctx context.Context, result TestResult) (string, error)
}

// Severity of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationOptions controls a single notification.
type NotificationOptions struct {
	Recipients []string
	Subject    string
	Severity   Severity
}

// NotificationResult reports a delivered notification.
type NotificationResult struct {
	ID     string `json:"id"`
	Sent   bool   `json:"sent"`
	Detail string `json:"detail,omitempty"`
}

// NotificationProvider delivers run summaries and failure lists.
type NotificationProvider interface {
	SendTestSummary(ctx context.Context, s *summary.RunSummary, opts NotificationOptions) (*NotificationResult, error)
	SendTestFailures(ctx context.Context, failures []summary.Failure, opts NotificationOptions) (*NotificationResult, error)
}

// Set holds the resolved collaborators for one pipeline run. Nil fields
// mean the collaborator is not configured.
type Set struct {
	AI           AIFixProvider
	BugTracker   BugTrackerProvider
	PR           PRProvider
	Database     DatabaseProvider
	Notification NotificationProvider

	closers []func() error
}

// AddCloser registers a cleanup func run by Close.
func (s *Set) AddCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases collaborator resources in reverse registration order.
func (s *Set) Close() error {
	var first error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}

	s.closers = nil

	return first
}
