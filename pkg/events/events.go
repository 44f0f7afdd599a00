// Package events decodes runner lifecycle events and dispatches them to a
// Sink.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/reportoor/pkg/record"
)

// Type is the kind of a runner event.
type Type string

const (
	TypeRunBegin     Type = "run_begin"
	TypeAttemptBegin Type = "attempt_begin"
	TypeAttemptEnd   Type = "attempt_end"
	TypeStepBegin    Type = "step_begin"
	TypeStepEnd      Type = "step_end"
	TypeNonTestError Type = "non_test_error"
	TypeRunEnd       Type = "run_end"
)

var (
	// ErrUnknownType is returned for events with an unrecognized type.
	ErrUnknownType = errors.New("unknown event type")

	// ErrMissingTest is returned for test events without a title.
	ErrMissingTest = errors.New("event has no test title")
)

// Event is one runner callback. Which fields are set depends on Type.
type Event struct {
	Type Type      `json:"type"`
	Time time.Time `json:"time,omitzero"`

	// Test identity and metadata.
	Suite    string `json:"suite,omitempty"`
	Title    string `json:"title,omitempty"`
	ID       string `json:"id,omitempty"`
	File     string `json:"file,omitempty"`
	Location string `json:"location,omitempty"`
	Team     string `json:"team,omitempty"`

	// Attempt is the zero-based retry index.
	Attempt    int                `json:"attempt,omitempty"`
	Status     string             `json:"status,omitempty"`
	DurationMS float64            `json:"duration_ms,omitempty"`
	Errors     []record.TestError `json:"errors,omitempty"`

	Step string `json:"step,omitempty"`

	// Error is the payload of non_test_error.
	Error *record.TestError `json:"error,omitempty"`

	// Run is the payload of run_begin.
	Run *record.RunInfo `json:"run,omitempty"`
}

// Identity returns the test identity the event refers to.
func (e *Event) Identity() record.Identity {
	return record.Identity{Suite: e.Suite, Title: e.Title}
}

// Sink receives decoded events.
type Sink interface {
	OnRunBegin(at time.Time, info record.RunInfo) error
	OnAttemptBegin(id record.Identity, attempt int) error
	OnAttemptEnd(id record.Identity, meta record.Metadata, attempt record.Attempt) error
	OnStep(id record.Identity, step string, begin bool) error
	OnNonTestError(e record.TestError) error
	OnRunEnd(at time.Time) error
}

// Observer is told the outcome of every dispatched event.
type Observer interface {
	EventObserved(eventType string, ok bool)
}

// Dispatch validates ev and forwards it to sink. Events without a
// timestamp are stamped with now.
func Dispatch(sink Sink, ev *Event, now func() time.Time) error {
	at := ev.Time
	if at.IsZero() {
		at = now()
	}

	switch ev.Type {
	case TypeRunBegin:
		var info record.RunInfo
		if ev.Run != nil {
			info = *ev.Run
		}

		return sink.OnRunBegin(at, info)
	case TypeAttemptBegin:
		if ev.Title == "" {
			return fmt.Errorf("%s: %w", ev.Type, ErrMissingTest)
		}

		return sink.OnAttemptBegin(ev.Identity(), ev.Attempt)
	case TypeAttemptEnd:
		if ev.Title == "" {
			return fmt.Errorf("%s: %w", ev.Type, ErrMissingTest)
		}

		status, err := record.ParseStatus(ev.Status)
		if err != nil {
			return fmt.Errorf("%s %s: %w", ev.Type, ev.Identity(), err)
		}

		return sink.OnAttemptEnd(ev.Identity(), record.Metadata{
			ID:       ev.ID,
			File:     ev.File,
			Location: ev.Location,
			Team:     ev.Team,
		}, record.Attempt{
			Status:   status,
			Duration: time.Duration(ev.DurationMS * float64(time.Millisecond)),
			Errors:   ev.Errors,
		})
	case TypeStepBegin, TypeStepEnd:
		return sink.OnStep(ev.Identity(), ev.Step, ev.Type == TypeStepBegin)
	case TypeNonTestError:
		var e record.TestError
		if ev.Error != nil {
			e = *ev.Error
		}

		return sink.OnNonTestError(e)
	case TypeRunEnd:
		return sink.OnRunEnd(at)
	default:
		return fmt.Errorf("%q: %w", ev.Type, ErrUnknownType)
	}
}
