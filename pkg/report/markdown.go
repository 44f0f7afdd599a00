// Package report renders a finished run for humans: a markdown summary
// artifact and the console report.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/summary"
)

// MarkdownFile is the markdown summary artifact.
const MarkdownFile = "summary.md"

// DefaultMaxChars caps the markdown summary, leaving headroom below the
// 65536 character limit of CI job summaries.
const DefaultMaxChars = 60000

// Input is everything the renderers show about a run.
type Input struct {
	Success    bool
	ExitCode   int
	Reasons    []string
	Summary    *summary.RunSummary
	Pipeline   *pipeline.Report
	Comparison *summary.Comparison
}

// Markdown renders in as a markdown document capped at maxChars. The
// failed tests section comes last and is truncated first.
func Markdown(in Input, maxChars int) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, in)
	writeOverview(&sb, in)

	if s := in.Summary; s != nil {
		writeResults(&sb, s)
		writeSlowest(&sb, s)
		writeNonTestErrors(&sb, s)
	}

	writeComparison(&sb, in.Comparison)
	writePipeline(&sb, in.Pipeline)

	if in.Summary != nil {
		writeFailedTests(&sb, in.Summary.Failures, maxChars)
	}

	return sb.String()
}

func statusText(success bool) string {
	if success {
		return "Passed"
	}

	return "Failed"
}

func writeTitle(sb *strings.Builder, in Input) {
	fmt.Fprintf(sb, "# Test Run: %s\n\n", statusText(in.Success))

	for _, r := range in.Reasons {
		fmt.Fprintf(sb, "- %s\n", r)
	}

	if len(in.Reasons) > 0 {
		sb.WriteString("\n")
	}
}

func writeOverview(sb *strings.Builder, in Input) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Exit Code | %d |\n", in.ExitCode)

	s := in.Summary
	if s == nil {
		sb.WriteString("\n")

		return
	}

	if !s.StartedAt.IsZero() {
		fmt.Fprintf(sb, "| Started | %s |\n", s.StartedAt.Format(time.RFC3339))
	}

	if s.TotalWallClockSeconds > 0 {
		fmt.Fprintf(sb, "| Duration | %s |\n", humanSeconds(s.TotalWallClockSeconds))
	}

	if s.Run.RunnerVersion != "" {
		fmt.Fprintf(sb, "| Runner | %s |\n", s.Run.RunnerVersion)
	}

	if s.Run.Shard != "" {
		fmt.Fprintf(sb, "| Shard | %s |\n", s.Run.Shard)
	}

	if b := s.Build; b != nil {
		if b.Branch != "" {
			fmt.Fprintf(sb, "| Branch | %s |\n", b.Branch)
		}

		if b.Commit != "" {
			fmt.Fprintf(sb, "| Commit | `%s` |\n", b.Commit)
		}

		if b.BuildURL != "" {
			fmt.Fprintf(sb, "| Build | %s |\n", b.BuildURL)
		}
	}

	sb.WriteString("\n")
}

func writeResults(sb *strings.Builder, s *summary.RunSummary) {
	sb.WriteString("## Results\n\n")
	sb.WriteString("| Total | Passed | Failed | Skipped | Flaky | Slow |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d | %d | %d |\n\n",
		s.TestCount, s.PassedCount, s.FailedCount, s.SkippedCount, s.FlakyCount, s.SlowTestCount)

	if s.PassedCount > 0 {
		fmt.Fprintf(sb, "Average passed attempt: %.2fs\n\n", s.AveragePassedDurationSeconds)
	}
}

func writeSlowest(sb *strings.Builder, s *summary.RunSummary) {
	if len(s.SlowestTests) == 0 {
		return
	}

	sb.WriteString("## Slowest Tests\n\n")
	sb.WriteString("| Test | Duration |\n")
	sb.WriteString("|---|---|\n")

	for _, tt := range s.SlowestTests {
		marker := ""
		if tt.Slow {
			marker = " (slow)"
		}

		fmt.Fprintf(sb, "| %s | %.2fs%s |\n", escapeCell(tt.ID), tt.DurationSeconds, marker)
	}

	sb.WriteString("\n")
}

func writeNonTestErrors(sb *strings.Builder, s *summary.RunSummary) {
	if len(s.NonTestErrors) == 0 && !s.Interrupted {
		return
	}

	sb.WriteString("## Run Errors\n\n")

	if s.Interrupted {
		sb.WriteString("- The run was interrupted.\n")
	}

	for _, e := range s.NonTestErrors {
		fmt.Fprintf(sb, "- %s\n", firstLine(e.Message))
	}

	sb.WriteString("\n")
}

func writeComparison(sb *strings.Builder, c *summary.Comparison) {
	if c == nil || !c.HasChanges() {
		return
	}

	fmt.Fprintf(sb, "## Changes Since Last Run (%s)\n\n", c.PreviousStatus)

	writeIDList(sb, "New failures", c.NewFailures)
	writeIDList(sb, "Still failing", c.StillFailing)
	writeIDList(sb, "Recovered", c.Recovered)
}

func writeIDList(sb *strings.Builder, title string, ids []string) {
	if len(ids) == 0 {
		return
	}

	fmt.Fprintf(sb, "**%s** (%d)\n\n", title, len(ids))

	for _, id := range ids {
		fmt.Fprintf(sb, "- %s\n", id)
	}

	sb.WriteString("\n")
}

func writePipeline(sb *strings.Builder, r *pipeline.Report) {
	if r == nil {
		return
	}

	sb.WriteString("## Post-Run Pipeline\n\n")
	sb.WriteString("| Channel | State | Succeeded | Failed | Skipped | Note |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")

	for _, c := range r.Channels {
		fmt.Fprintf(sb, "| %s | %s | %d | %d | %d | %s |\n",
			c.Channel, c.State, c.Succeeded, c.Failed, c.Skipped, escapeCell(c.Hint))
	}

	sb.WriteString("\n")

	for _, pr := range r.PullRequests {
		if pr.PR != nil && pr.PR.URL != "" {
			fmt.Fprintf(sb, "- Pull request for %s: %s\n", pr.TestID, pr.PR.URL)
		}
	}

	for _, b := range r.Bugs {
		if b.Bug != nil && b.Bug.URL != "" {
			fmt.Fprintf(sb, "- Bug for %s: %s\n", b.TestID, b.Bug.URL)
		}
	}

	if len(r.PullRequests) > 0 || len(r.Bugs) > 0 {
		sb.WriteString("\n")
	}
}

func writeFailedTests(sb *strings.Builder, failed []summary.Failure, maxChars int) {
	if len(failed) == 0 {
		return
	}

	sb.WriteString("## Failed Tests\n\n")
	sb.WriteString("| Test | Category | Error |\n")
	sb.WriteString("|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, f := range failed {
		row := fmt.Sprintf("| %s | %s | %s |\n",
			escapeCell(f.TestID), f.Category, escapeCell(firstLine(f.ErrorMessage)))

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			fmt.Fprintf(sb,
				"\n*%d more failed test(s) not shown (output truncated at %s)*\n",
				len(failed)-i, units.HumanSize(float64(maxChars)))

			return
		}

		sb.WriteString(row)
	}
}

func humanSeconds(secs float64) string {
	return units.HumanDuration(time.Duration(secs * float64(time.Second)))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
