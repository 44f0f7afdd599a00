package record

import (
	"fmt"
	"time"
)

// Status is the outcome of a single test attempt as reported by the runner.
type Status string

const (
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusTimedOut    Status = "timedOut"
	StatusSkipped     Status = "skipped"
	StatusInterrupted Status = "interrupted"
)

// ParseStatus validates a runner-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPassed, StatusFailed, StatusTimedOut, StatusSkipped, StatusInterrupted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown attempt status %q", s)
	}
}

// IsFailing reports whether the status produces a Failure.
func (s Status) IsFailing() bool {
	return s == StatusFailed || s == StatusTimedOut
}

// TestError is a single error reported for an attempt or outside any test.
type TestError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Identity is the stable key of a test: its suite path plus its title. The
// store keys records by the struct itself, so suites and titles containing
// the display separator never collide.
type Identity struct {
	Suite string `json:"suite"`
	Title string `json:"title"`
}

// Key returns the display form "suite > title".
func (i Identity) Key() string {
	if i.Suite == "" {
		return i.Title
	}

	return i.Suite + " > " + i.Title
}

// String implements fmt.Stringer.
func (i Identity) String() string {
	return i.Key()
}

// Metadata carries the descriptive fields the runner reports per test.
// Later attempts only fill fields that are still empty.
type Metadata struct {
	ID       string `json:"id,omitempty"`
	File     string `json:"file,omitempty"`
	Location string `json:"location,omitempty"`
	Team     string `json:"team,omitempty"`
}

func (m *Metadata) merge(other Metadata) {
	if m.ID == "" {
		m.ID = other.ID
	}

	if m.File == "" {
		m.File = other.File
	}

	if m.Location == "" {
		m.Location = other.Location
	}

	if m.Team == "" {
		m.Team = other.Team
	}
}

// Attempt is one execution of a test. Attempts are immutable once appended.
type Attempt struct {
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Errors   []TestError   `json:"errors,omitempty"`
}

// FirstError returns the first reported error, or a zero value.
func (a Attempt) FirstError() TestError {
	if len(a.Errors) == 0 {
		return TestError{}
	}

	return a.Errors[0]
}

// TestRecord accumulates every attempt of a single test identity.
type TestRecord struct {
	identity Identity
	meta     Metadata
	attempts []Attempt
}

// Identity returns the record's key.
func (r *TestRecord) Identity() Identity {
	return r.identity
}

// Metadata returns the merged test metadata.
func (r *TestRecord) Metadata() Metadata {
	return r.meta
}

// ID returns the runner-supplied test id, falling back to the identity key.
func (r *TestRecord) ID() string {
	if r.meta.ID != "" {
		return r.meta.ID
	}

	return r.identity.Key()
}

// Attempts returns a copy of the attempts in arrival order.
func (r *TestRecord) Attempts() []Attempt {
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)

	return out
}

// FinalAttempt returns the last appended attempt.
func (r *TestRecord) FinalAttempt() Attempt {
	return r.attempts[len(r.attempts)-1]
}

// FinalStatus is the status of the last attempt.
func (r *TestRecord) FinalStatus() Status {
	return r.FinalAttempt().Status
}

// RetryCount is the number of attempts beyond the first.
func (r *TestRecord) RetryCount() int {
	return len(r.attempts) - 1
}
