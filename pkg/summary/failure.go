package summary

import (
	"github.com/ethpandaops/reportoor/pkg/classify"
	"github.com/ethpandaops/reportoor/pkg/record"
)

// Failure is the surfaced, classified record of a test whose final attempt
// failed or timed out.
type Failure struct {
	TestID          string            `json:"test_id"`
	TestTitle       string            `json:"test_title"`
	SuiteTitle      string            `json:"suite_title"`
	ErrorMessage    string            `json:"error_message"`
	ErrorStack      string            `json:"error_stack,omitempty"`
	Category        classify.Category `json:"category"`
	DurationSeconds float64           `json:"duration_seconds"`
	IsTimeout       bool              `json:"is_timeout"`
	TestFile        string            `json:"test_file,omitempty"`
	Location        string            `json:"location,omitempty"`
	OwningTeam      string            `json:"owning_team,omitempty"`
	Retries         int               `json:"retries"`
}

// BuildFailures derives one Failure per record with a failing final attempt,
// in store order. The final attempt's error is used, not the first one.
func BuildFailures(records []*record.TestRecord) []Failure {
	failures := make([]Failure, 0)

	for _, rec := range records {
		final := rec.FinalAttempt()
		if !final.Status.IsFailing() {
			continue
		}

		err := final.FirstError()
		category := classify.Classify(err.Message)
		meta := rec.Metadata()

		failures = append(failures, Failure{
			TestID:          rec.ID(),
			TestTitle:       rec.Identity().Title,
			SuiteTitle:      rec.Identity().Suite,
			ErrorMessage:    err.Message,
			ErrorStack:      err.Stack,
			Category:        category,
			DurationSeconds: final.Duration.Seconds(),
			IsTimeout:       final.Status == record.StatusTimedOut || category == classify.TimeoutError,
			TestFile:        meta.File,
			Location:        meta.Location,
			OwningTeam:      meta.Team,
			Retries:         rec.RetryCount(),
		})
	}

	return failures
}
