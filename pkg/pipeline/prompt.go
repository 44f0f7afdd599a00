package pipeline

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
)

const (
	defaultStackLines   = 15
	errorExcerptChars   = 200
	truncatedSourceNote = "\n// ... truncated ...\n"
)

type promptData struct {
	Failure summary.Failure
	Stack   string
	Source  string
}

var promptTmpl = template.Must(template.New("prompt").Parse(`# Failing test

- Test: {{.Failure.TestTitle}}
- Suite: {{.Failure.SuiteTitle}}
- File: {{.Failure.TestFile}}
{{- if .Failure.Location}}
- Location: {{.Failure.Location}}
{{- end}}
- Category: {{.Failure.Category}}
- Timed out: {{.Failure.IsTimeout}}
- Retries: {{.Failure.Retries}}

## Error

` + "```" + `
{{.Failure.ErrorMessage}}
` + "```" + `
{{- if .Stack}}

## Stack trace

` + "```" + `
{{.Stack}}
` + "```" + `
{{- end}}

## Source

` + "```" + `
{{.Source}}
` + "```" + `

Explain the most likely cause of the failure and reply with the complete
corrected test file in a single fenced code block.
`))

// buildPrompt renders the fix prompt for f with the first stackLines lines
// of its stack and the test source. The source is embedded whole unless
// maxSourceBytes is set; truncated reports whether it was cut.
func buildPrompt(
	f summary.Failure, source string, stackLines, maxSourceBytes int,
) (prompt string, truncated bool, err error) {
	if stackLines <= 0 {
		stackLines = defaultStackLines
	}

	if maxSourceBytes > 0 {
		if head, cut := truncateUTF8(source, maxSourceBytes); cut {
			source = head + truncatedSourceNote
			truncated = true
		}
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, promptData{
		Failure: f,
		Stack:   firstLines(f.ErrorStack, stackLines),
		Source:  source,
	}); err != nil {
		return "", false, fmt.Errorf("rendering prompt: %w", err)
	}

	return buf.String(), truncated, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n], true
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}

	return strings.Join(lines, "\n")
}

var codeBlock = regexp.MustCompile("(?s)```[^\\n`]*\\n(.*?)```")

// extractCode returns the body of the first fenced code block.
func extractCode(suggestion string) (string, bool) {
	m := codeBlock.FindStringSubmatch(suggestion)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}

	return m[1], true
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}

	if head, cut := truncateUTF8(s, n); cut {
		return head + "..."
	}

	return s
}

func priorityFor(f summary.Failure) provider.Priority {
	if f.IsTimeout {
		return provider.PriorityHigh
	}

	return provider.PriorityMedium
}

var bugTmpl = template.Must(template.New("bug").Parse(`## Failing test

| Field | Value |
|---|---|
| Test | {{.Failure.TestTitle}} |
| Suite | {{.Failure.SuiteTitle}} |
| File | {{.Failure.TestFile}}{{if .Failure.Location}} ({{.Failure.Location}}){{end}} |
| Category | {{.Failure.Category}} |
| Duration | {{printf "%.2f" .Failure.DurationSeconds}}s |
| Retries | {{.Failure.Retries}} |
{{- if .Failure.OwningTeam}}
| Team | {{.Failure.OwningTeam}} |
{{- end}}
{{- if .Build}}{{if .Build.Commit}}
| Commit | {{.Build.Commit}} |
{{- end}}{{if .Build.BuildURL}}
| Build | {{.Build.BuildURL}} |
{{- end}}{{end}}

### Error

` + "```" + `
{{.Failure.ErrorMessage}}
` + "```" + `
{{- if .Stack}}

### Stack trace

` + "```" + `
{{.Stack}}
` + "```" + `
{{- end}}
`))

var prTmpl = template.Must(template.New("pr").Parse(`Automated fix for failing test **{{.Failure.TestTitle}}** ({{.Failure.SuiteTitle}}).

- File: ` + "`{{.Failure.TestFile}}`" + `
- Category: {{.Failure.Category}}
- Commit: {{.CommitID}}

### Error

` + "```" + `
{{.Failure.ErrorMessage}}
` + "```" + `

### Suggested fix

{{.Suggestion}}

> Generated automatically. Review carefully before merging.
`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.Name(), err)
	}

	return buf.String(), nil
}
