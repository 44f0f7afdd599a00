package report

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/reportoor/pkg/buildinfo"
	"github.com/ethpandaops/reportoor/pkg/classify"
	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/record"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingSummary(failures int) *summary.RunSummary {
	s := &summary.RunSummary{
		Metrics: summary.Metrics{
			TestCount:             failures + 2,
			PassedCount:           2,
			FailedCount:           failures,
			SlowestTests:          []summary.TestTiming{{ID: "cart > lists", DurationSeconds: 3.5, Slow: true}},
			TotalWallClockSeconds: 90,
		},
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Run:       record.RunInfo{RunnerVersion: "1.50.0"},
		Build:     &buildinfo.Info{Branch: "main", Commit: "abc123"},
	}

	for i := 0; i < failures; i++ {
		s.Failures = append(s.Failures, summary.Failure{
			TestID:       fmt.Sprintf("cart > test %03d", i),
			TestFile:     "tests/cart.spec.ts",
			ErrorMessage: "expect(received).toBe(expected)\n\nExpected: 2",
			ErrorStack:   "at one\nat two",
			Category:     classify.AssertionError,
		})
	}

	return s
}

func TestMarkdown(t *testing.T) {
	rep := &pipeline.Report{
		Channels: []*pipeline.ChannelReport{
			{Channel: pipeline.ChannelBugFiling, State: pipeline.StateFailed, Hint: "configure providers.bug_tracker"},
			{Channel: pipeline.ChannelNotification, State: pipeline.StateSucceeded, Succeeded: 2},
		},
		PullRequests: []pipeline.PRResult{{TestID: "cart > test 000", PR: &provider.PullRequest{URL: "https://prs/1"}}},
	}

	md := Markdown(Input{
		Success:  false,
		ExitCode: 1,
		Reasons:  []string{"1 test(s) failed"},
		Summary:  failingSummary(1),
		Pipeline: rep,
		Comparison: &summary.Comparison{
			PreviousStatus: summary.StatusPassed,
			NewFailures:    []string{"cart > test 000"},
		},
	}, DefaultMaxChars)

	assert.True(t, strings.HasPrefix(md, "# Test Run: Failed\n"))
	assert.Contains(t, md, "- 1 test(s) failed")
	assert.Contains(t, md, "| Exit Code | 1 |")
	assert.Contains(t, md, "| Commit | `abc123` |")
	assert.Contains(t, md, "| 3 | 2 | 1 | 0 | 0 | 0 |")
	assert.Contains(t, md, "| cart > lists | 3.50s (slow) |")
	assert.Contains(t, md, "## Changes Since Last Run (passed)")
	assert.Contains(t, md, "**New failures** (1)")
	assert.Contains(t, md, "| bug_filing | failed | 0 | 0 | 0 | configure providers.bug_tracker |")
	assert.Contains(t, md, "- Pull request for cart > test 000: https://prs/1")
	assert.Contains(t, md, "| cart > test 000 | AssertionError | expect(received).toBe(expected) |")

	// Failed tests come last.
	assert.Greater(t, strings.Index(md, "## Failed Tests"), strings.Index(md, "## Post-Run Pipeline"))
}

func TestMarkdown_NoSummary(t *testing.T) {
	md := Markdown(Input{ExitCode: 1, Reasons: []string{"no tests discovered"}}, DefaultMaxChars)

	assert.Contains(t, md, "# Test Run: Failed")
	assert.Contains(t, md, "- no tests discovered")
	assert.NotContains(t, md, "## Results")
	assert.NotContains(t, md, "## Post-Run Pipeline")
}

func TestMarkdown_Truncation(t *testing.T) {
	const maxChars = 3000

	md := Markdown(Input{Summary: failingSummary(200)}, maxChars)

	assert.LessOrEqual(t, len(md), maxChars)
	assert.Contains(t, md, "more failed test(s) not shown")
	assert.Contains(t, md, "| cart > test 000 |")
	assert.NotContains(t, md, "| cart > test 199 |")
}

func TestMarkdown_EscapesPipes(t *testing.T) {
	s := failingSummary(1)
	s.Failures[0].TestID = "a | b"

	md := Markdown(Input{Summary: s}, 0)
	assert.Contains(t, md, `| a \| b |`)
}

func TestConsole(t *testing.T) {
	rep := &pipeline.Report{Channels: []*pipeline.ChannelReport{
		{
			Channel: pipeline.ChannelBugFiling,
			State:   pipeline.StateFailed,
			Hint:    "configure providers.bug_tracker",
			Errors:  []pipeline.ItemError{{Kind: provider.KindConfiguration, Message: "collaborator not configured"}},
		},
	}}

	s := failingSummary(1)
	s.NonTestErrors = []record.TestError{{Message: "globalSetup failed"}}

	tests := []struct {
		name      string
		showStack bool
	}{
		{name: "without stacks"},
		{name: "with stacks", showStack: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			require.NoError(t, Console(&buf, Input{
				ExitCode: 1,
				Summary:  s,
				Pipeline: rep,
			}, tt.showStack))

			out := buf.String()

			assert.Contains(t, out, "Test run failed (exit code 1)")
			assert.Contains(t, out, "3 tests: 2 passed, 1 failed, 0 skipped, 0 flaky in ")
			assert.Contains(t, out, "  x cart > test 000 [AssertionError]")
			assert.Contains(t, out, "      at tests/cart.spec.ts")
			assert.Contains(t, out, "  ! globalSetup failed")
			assert.Contains(t, out, "Pipeline warnings:\n  ~ bug_filing: collaborator not configured (hint: configure providers.bug_tracker)")
			assert.Equal(t, tt.showStack, strings.Contains(out, "        at two"))

			assert.Less(t, strings.Index(out, "Failing tests:"), strings.Index(out, "Pipeline warnings:"))
		})
	}
}
