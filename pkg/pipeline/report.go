package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/hashicorp/go-multierror"
)

// ReportFile is the pipeline report artifact.
const ReportFile = "pipeline-report.json"

// Channel names a post-run pipeline channel.
type Channel string

const (
	ChannelFixSuggestion Channel = "fix_suggestion"
	ChannelPRAutomation  Channel = "pr_automation"
	ChannelBugFiling     Channel = "bug_filing"
	ChannelDBPublish     Channel = "db_publish"
	ChannelNotification  Channel = "notification"
)

// Channels lists every channel in execution order.
var Channels = []Channel{
	ChannelFixSuggestion,
	ChannelPRAutomation,
	ChannelBugFiling,
	ChannelDBPublish,
	ChannelNotification,
}

// State is the lifecycle state of a channel.
type State string

const (
	StateDisabled  State = "disabled"
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ItemError is one failed unit of work in a channel.
type ItemError struct {
	Item    string             `json:"item"`
	Kind    provider.ErrorKind `json:"kind"`
	Message string             `json:"message"`
}

// ChannelReport is the outcome of one channel.
type ChannelReport struct {
	Channel   Channel     `json:"channel"`
	State     State       `json:"state"`
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Aborted   bool        `json:"aborted,omitempty"`
	Hint      string      `json:"hint,omitempty"`
	Errors    []ItemError `json:"errors,omitempty"`

	errs []error
}

func newChannelReport(ch Channel, enabled bool) *ChannelReport {
	state := StateDisabled
	if enabled {
		state = StatePending
	}

	return &ChannelReport{Channel: ch, State: state}
}

// Enabled reports whether the channel was switched on.
func (c *ChannelReport) Enabled() bool {
	return c.State != StateDisabled
}

func (c *ChannelReport) start() {
	if c.State == StatePending {
		c.State = StateRunning
	}
}

func (c *ChannelReport) itemFailed(item string, err error) {
	c.Failed++
	c.Errors = append(c.Errors, ItemError{
		Item:    item,
		Kind:    provider.KindOf(err),
		Message: err.Error(),
	})
	c.errs = append(c.errs, fmt.Errorf("%s: %s: %w", c.Channel, item, err))
}

// misconfigured marks the channel failed without attempting any item.
func (c *ChannelReport) misconfigured(hint string, err error) {
	c.State = StateFailed
	c.Aborted = true
	c.Hint = hint
	c.Errors = append(c.Errors, ItemError{
		Kind:    provider.KindConfiguration,
		Message: err.Error(),
	})
	c.errs = append(c.errs, fmt.Errorf("%s: %w", c.Channel, err))
}

// finish settles the terminal state of a started channel.
func (c *ChannelReport) finish() {
	if c.State != StateRunning && c.State != StatePending {
		return
	}

	if c.Failed > 0 || c.Aborted {
		c.State = StateFailed

		return
	}

	c.State = StateSucceeded
}

// FixResult records the artifacts of one fix suggestion.
type FixResult struct {
	TestID     string `json:"test_id"`
	PromptPath string `json:"prompt_path"`
	FixPath    string `json:"fix_path"`
	// Truncated is set when the prompt carried only part of the source.
	Truncated bool `json:"truncated,omitempty"`
}

// PRResult records an opened pull request.
type PRResult struct {
	TestID   string                `json:"test_id"`
	Branch   string                `json:"branch"`
	CommitID string                `json:"commit_id"`
	PR       *provider.PullRequest `json:"pull_request"`
}

// BugResult records a filed bug.
type BugResult struct {
	TestID string        `json:"test_id"`
	Bug    *provider.Bug `json:"bug"`
}

// Report is the outcome of a pipeline run.
type Report struct {
	Channels      []*ChannelReport               `json:"channels"`
	Fixes         []FixResult                    `json:"fixes,omitempty"`
	PullRequests  []PRResult                     `json:"pull_requests,omitempty"`
	Bugs          []BugResult                    `json:"bugs,omitempty"`
	RunID         string                         `json:"run_id,omitempty"`
	Notifications []*provider.NotificationResult `json:"notifications,omitempty"`
}

// Channel returns the report of ch.
func (r *Report) Channel(ch Channel) *ChannelReport {
	for _, c := range r.Channels {
		if c.Channel == ch {
			return c
		}
	}

	return nil
}

// Err aggregates every item and configuration error across channels.
// Channel errors never affect the run's exit status.
func (r *Report) Err() error {
	var result *multierror.Error

	for _, c := range r.Channels {
		result = multierror.Append(result, c.errs...)
	}

	return result.ErrorOrNil()
}

// Warnings returns one line per failed channel for console output.
func (r *Report) Warnings() []string {
	warnings := make([]string, 0)

	for _, c := range r.Channels {
		if c.State != StateFailed {
			continue
		}

		msg := fmt.Sprintf("%s failed", c.Channel)

		switch {
		case c.Failed > 0:
			msg = fmt.Sprintf("%s: %d of %d item(s) failed", c.Channel, c.Failed, c.Attempted)
		case len(c.Errors) > 0:
			msg = fmt.Sprintf("%s: %s", c.Channel, c.Errors[0].Message)
		}

		if c.Hint != "" {
			msg += " (hint: " + c.Hint + ")"
		}

		warnings = append(warnings, msg)
	}

	return warnings
}

// Write persists the report to dir/pipeline-report.json.
func (r *Report) Write(dir string, owner *fsutil.OwnerConfig) error {
	if err := fsutil.WriteJSON(filepath.Join(dir, ReportFile), r, owner); err != nil {
		return fmt.Errorf("writing pipeline report: %w", err)
	}

	return nil
}
