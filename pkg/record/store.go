package record

import (
	"errors"
	"sync"
	"time"
)

// ErrFrozen is returned when the store is mutated after the run ended.
var ErrFrozen = errors.New("record store is frozen")

// RunInfo is the run metadata the runner reports at run begin.
type RunInfo struct {
	RunnerVersion string   `json:"runner_version,omitempty"`
	Workers       int      `json:"workers,omitempty"`
	Projects      []string `json:"projects,omitempty"`
	Shard         string   `json:"shard,omitempty"`
}

// Store holds the attempts of every test seen during a run.
//
// Runner callbacks for different tests may interleave, so the map is
// guarded by a mutex. Identities are remembered in first-seen order so
// rankings derived from the store are stable.
type Store struct {
	mu            sync.Mutex
	records       map[Identity]*TestRecord
	order         []Identity
	nonTestErrors []TestError
	interrupted   bool
	frozen        bool
	info          RunInfo
	startedAt     time.Time
	endedAt       time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[Identity]*TestRecord, 64),
		order:   make([]Identity, 0, 64),
	}
}

// Begin records the run start time and metadata.
func (s *Store) Begin(at time.Time, info RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	s.startedAt = at
	s.info = info

	return nil
}

// Append adds an attempt to the record for id, creating it on first use.
func (s *Store) Append(id Identity, meta Metadata, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	rec, ok := s.records[id]
	if !ok {
		rec = &TestRecord{identity: id, meta: meta}
		s.records[id] = rec
		s.order = append(s.order, id)
	} else {
		rec.meta.merge(meta)
	}

	// Copy errors so the caller cannot mutate an appended attempt.
	if len(attempt.Errors) > 0 {
		errs := make([]TestError, len(attempt.Errors))
		copy(errs, attempt.Errors)
		attempt.Errors = errs
	}

	rec.attempts = append(rec.attempts, attempt)

	if attempt.Status == StatusInterrupted {
		s.interrupted = true
	}

	return nil
}

// AddNonTestError records an error raised outside any test attempt.
func (s *Store) AddNonTestError(e TestError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	s.nonTestErrors = append(s.nonTestErrors, e)

	return nil
}

// MarkInterrupted flags the run as interrupted without an attempt event,
// e.g. when the event stream ends before run end.
func (s *Store) MarkInterrupted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	s.interrupted = true

	return nil
}

// Freeze stops all further mutation and records the run end time.
func (s *Store) Freeze(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	s.frozen = true
	s.endedAt = at

	return nil
}

// Frozen reports whether Freeze has been called.
func (s *Store) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frozen
}

// Len returns the number of distinct test identities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Get returns the record for id.
func (s *Store) Get(id Identity) (*TestRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]

	return rec, ok
}

// Records returns every record in first-seen order.
func (s *Store) Records() []*TestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*TestRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}

	return out
}

// NonTestErrors returns a copy of the setup/teardown errors.
func (s *Store) NonTestErrors() []TestError {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TestError, len(s.nonTestErrors))
	copy(out, s.nonTestErrors)

	return out
}

// HasInterruptedTests reports whether any attempt was interrupted.
func (s *Store) HasInterruptedTests() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.interrupted
}

// Info returns the run metadata captured at Begin.
func (s *Store) Info() RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.info
}

// StartedAt returns the run begin timestamp.
func (s *Store) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.startedAt
}

// EndedAt returns the run end timestamp; zero until frozen.
func (s *Store) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.endedAt
}
