package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// maxLineBytes bounds a single JSON-lines event; stacks can be long.
const maxLineBytes = 4 * 1024 * 1024

// ErrNoRunEnd is returned when a stream ends before an accepted run_end
// event.
var ErrNoRunEnd = errors.New("event stream ended without run_end")

// Stats counts what a replay processed.
type Stats struct {
	Lines    int
	Events   int
	Rejected int
	RunEnded bool
}

// Decoder reads JSON-lines events.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &Decoder{scanner: s}
}

// Line returns the number of the last line read.
func (d *Decoder) Line() int {
	return d.line
}

// Next returns the next event. Blank lines are skipped. It returns io.EOF
// at the end of the stream.
func (d *Decoder) Next() (*Event, error) {
	for d.scanner.Scan() {
		d.line++

		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, &SyntaxError{Line: d.line, Err: err}
		}

		return &ev, nil
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	return nil, io.EOF
}

// SyntaxError is a line that is not a valid event.
type SyntaxError struct {
	Line int
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Replay feeds every event of r to sink until run_end or the end of the
// stream. Malformed lines and events the sink rejects are logged and
// counted, not fatal. It returns ErrNoRunEnd if the stream ends first or
// the sink rejects run_end, and ctx.Err() if ctx is cancelled between
// events. Observers see the outcome of every dispatched event.
func Replay(
	ctx context.Context,
	log logrus.FieldLogger,
	r io.Reader,
	sink Sink,
	observers ...Observer,
) (Stats, error) {
	log = log.WithField("component", "events")

	var stats Stats

	dec := NewDecoder(r)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		ev, err := dec.Next()
		stats.Lines = dec.Line()

		if errors.Is(err, io.EOF) {
			return stats, ErrNoRunEnd
		}

		var syntaxErr *SyntaxError
		if errors.As(err, &syntaxErr) {
			stats.Rejected++

			log.WithError(err).Warn("Skipping malformed event")

			continue
		}

		if err != nil {
			return stats, err
		}

		stats.Events++

		err = Dispatch(sink, ev, time.Now)

		for _, o := range observers {
			o.EventObserved(string(ev.Type), err == nil)
		}

		if err != nil {
			stats.Rejected++

			log.WithFields(logrus.Fields{
				"line": dec.Line(),
				"type": ev.Type,
			}).WithError(err).Warn("Event rejected")
		}

		if ev.Type == TypeRunEnd {
			if err != nil {
				return stats, fmt.Errorf("run_end rejected: %v: %w", err, ErrNoRunEnd)
			}

			stats.RunEnded = true

			return stats, nil
		}
	}
}
