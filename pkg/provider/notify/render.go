// Package notify delivers run summaries and failure lists by email or to a
// JSON webhook.
package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ethpandaops/reportoor/pkg/summary"
)

const maxErrorChars = 500

var funcs = template.FuncMap{
	"seconds":  func(v float64) string { return fmt.Sprintf("%.2fs", v) },
	"truncate": truncate,
}

var summaryTmpl = template.Must(template.New("summary").Funcs(funcs).Parse(
	`Test run finished: {{.PassedCount}} passed, {{.FailedCount}} failed, {{.SkippedCount}} skipped ({{.TestCount}} total).
Flaky: {{.FlakyCount}}
Wall clock: {{seconds .TotalWallClockSeconds}}
Average passed test: {{seconds .AveragePassedDurationSeconds}}
{{- if .Interrupted}}
The run was interrupted.
{{- end}}
{{- if .Build}}{{if .Build.Commit}}
Commit: {{.Build.Commit}}{{if .Build.Branch}} ({{.Build.Branch}}){{end}}
{{- end}}{{if .Build.BuildURL}}
Build: {{.Build.BuildURL}}
{{- end}}{{end}}
{{- if .Failures}}

Failures:
{{- range .Failures}}
  - {{.TestID}} [{{.Category}}]
{{- end}}
{{- end}}
{{- if .SlowestTests}}

Slowest tests:
{{- range .SlowestTests}}
  - {{.ID}} {{seconds .DurationSeconds}}{{if .Slow}} (slow){{end}}
{{- end}}
{{- end}}
`))

var failuresTmpl = template.Must(template.New("failures").Funcs(funcs).Parse(
	`{{len .}} test(s) failed:
{{range .}}
{{.TestID}}
  Category: {{.Category}}{{if .IsTimeout}} (timeout){{end}}
  Retries: {{.Retries}}
{{- if .TestFile}}
  File: {{.TestFile}}{{if .Location}} ({{.Location}}){{end}}
{{- end}}
{{- if .OwningTeam}}
  Team: {{.OwningTeam}}
{{- end}}
  Error: {{truncate .ErrorMessage}}
{{end}}`))

func renderSummary(s *summary.RunSummary) (string, error) {
	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("rendering summary: %w", err)
	}

	return buf.String(), nil
}

func renderFailures(failures []summary.Failure) (string, error) {
	var buf bytes.Buffer
	if err := failuresTmpl.Execute(&buf, failures); err != nil {
		return "", fmt.Errorf("rendering failures: %w", err)
	}

	return buf.String(), nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorChars {
		return s
	}

	return s[:maxErrorChars] + "..."
}
