package report

import (
	"fmt"
	"io"
	"strings"
)

// maxStackLines caps stack traces printed to the console.
const maxStackLines = 10

// Console writes the human-readable run report to w. Failing tests and
// pipeline warnings are listed in separate sections.
func Console(w io.Writer, in Input, showStack bool) error {
	cw := &consoleWriter{w: w}

	s := in.Summary

	cw.printf("\nTest run %s (exit code %d)\n", strings.ToLower(statusText(in.Success)), in.ExitCode)

	if s != nil {
		cw.printf("  %d tests: %d passed, %d failed, %d skipped, %d flaky",
			s.TestCount, s.PassedCount, s.FailedCount, s.SkippedCount, s.FlakyCount)

		if s.TotalWallClockSeconds > 0 {
			cw.printf(" in %s", humanSeconds(s.TotalWallClockSeconds))
		}

		cw.printf("\n")
	}

	for _, r := range in.Reasons {
		cw.printf("  - %s\n", r)
	}

	if s != nil && len(s.Failures) > 0 {
		cw.printf("\nFailing tests:\n")

		for _, f := range s.Failures {
			cw.printf("  x %s [%s]\n", f.TestID, f.Category)

			if f.TestFile != "" {
				loc := f.TestFile
				if f.Location != "" {
					loc = f.Location
				}

				cw.printf("      at %s\n", loc)
			}

			cw.printf("      %s\n", firstLine(f.ErrorMessage))

			if showStack && f.ErrorStack != "" {
				for _, line := range stackHead(f.ErrorStack, maxStackLines) {
					cw.printf("        %s\n", line)
				}
			}
		}
	}

	if s != nil && len(s.NonTestErrors) > 0 {
		cw.printf("\nRun errors:\n")

		for _, e := range s.NonTestErrors {
			cw.printf("  ! %s\n", firstLine(e.Message))
		}
	}

	if c := in.Comparison; c != nil && c.HasChanges() {
		cw.printf("\nSince last run: %d new failure(s), %d still failing, %d recovered\n",
			len(c.NewFailures), len(c.StillFailing), len(c.Recovered))
	}

	if in.Pipeline != nil {
		if warnings := in.Pipeline.Warnings(); len(warnings) > 0 {
			cw.printf("\nPipeline warnings:\n")

			for _, warning := range warnings {
				cw.printf("  ~ %s\n", warning)
			}
		}
	}

	return cw.err
}

type consoleWriter struct {
	w   io.Writer
	err error
}

func (c *consoleWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}

	_, c.err = fmt.Fprintf(c.w, format, args...)
}

func stackHead(stack string, n int) []string {
	lines := strings.Split(strings.TrimRight(stack, "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}

	return lines
}
