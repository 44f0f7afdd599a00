// Package engine drives a run through its lifecycle: it receives runner
// events into the record store, and at run end builds the summary, runs the
// post-run pipeline, decides the exit status and writes the artifacts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/exitcodes"
	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/record"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Config for the engine.
type Config struct {
	OutputDir        string
	Owner            *fsutil.OwnerConfig
	MarkdownMaxChars int
}

// RunRecorder observes decided runs, e.g. for metrics.
type RunRecorder interface {
	RunFinished(s *summary.RunSummary, exitCode int, success bool)
}

// Result is the outcome of a finished run.
type Result struct {
	Decision

	// Summary is nil when no tests were discovered.
	Summary *summary.RunSummary
	// Pipeline is nil when the pipeline did not run.
	Pipeline   *pipeline.Report
	Comparison *summary.Comparison
}

// ReportInput converts r for the report renderers.
func (r *Result) ReportInput() report.Input {
	return report.Input{
		Success:    r.Success,
		ExitCode:   r.ExitCode,
		Reasons:    r.Reasons,
		Summary:    r.Summary,
		Pipeline:   r.Pipeline,
		Comparison: r.Comparison,
	}
}

// Engine is the event sink of one run. Sink methods may be called from
// concurrent goroutines.
type Engine struct {
	log          logrus.FieldLogger
	cfg          Config
	store        *record.Store
	builder      *summary.Builder
	orchestrator *pipeline.Orchestrator
	recorder     RunRecorder

	mu         sync.Mutex
	phase      Phase
	runtimeErr *multierror.Error
	result     *Result
}

var _ events.Sink = (*Engine)(nil)

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder attaches a RunRecorder.
func WithRecorder(r RunRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// New creates an idle engine with an empty record store.
func New(
	log logrus.FieldLogger,
	cfg Config,
	builder *summary.Builder,
	orchestrator *pipeline.Orchestrator,
	opts ...Option,
) *Engine {
	if cfg.MarkdownMaxChars == 0 {
		cfg.MarkdownMaxChars = report.DefaultMaxChars
	}

	if builder == nil {
		builder = &summary.Builder{}
	}

	e := &Engine{
		log:          log.WithField("component", "engine"),
		cfg:          cfg,
		store:        record.NewStore(),
		builder:      builder,
		orchestrator: orchestrator,
		phase:        PhaseIdle,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.phase
}

// Tests returns the number of distinct tests seen so far.
func (e *Engine) Tests() int {
	return e.store.Len()
}

// Result returns the outcome once the run is finalized, or nil.
func (e *Engine) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.result
}

// transition moves to phase to. The caller holds e.mu.
func (e *Engine) transition(to Phase) error {
	if !CanTransition(e.phase, to) {
		return transitionError(e.phase, to)
	}

	e.log.WithFields(logrus.Fields{
		"from": e.phase,
		"to":   to,
	}).Debug("Run phase changed")

	e.phase = to

	return nil
}

// escalate turns a mutation of the frozen store into a runtime error that
// forces exit code 2. The caller holds e.mu.
func (e *Engine) escalate(err error) error {
	if errors.Is(err, record.ErrFrozen) {
		e.runtimeErr = multierror.Append(e.runtimeErr, err)

		e.log.WithError(err).Error("Event received after run end")
	}

	return err
}

func (e *Engine) requireStarted(op string) error {
	if e.phase == PhaseIdle {
		return fmt.Errorf("%s before run begin: %w", op, ErrInvalidTransition)
	}

	return nil
}

// OnRunBegin starts the run.
func (e *Engine) OnRunBegin(at time.Time, info record.RunInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transition(PhaseRunning); err != nil {
		return err
	}

	if err := e.store.Begin(at, info); err != nil {
		return e.escalate(err)
	}

	e.log.WithFields(logrus.Fields{
		"runner_version": info.RunnerVersion,
		"workers":        info.Workers,
	}).Info("Run started")

	return nil
}

// OnAttemptBegin is logged only.
func (e *Engine) OnAttemptBegin(id record.Identity, attempt int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireStarted("attempt begin"); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"test":    id.Key(),
		"attempt": attempt,
	}).Debug("Attempt started")

	return nil
}

// OnAttemptEnd appends a finished attempt.
func (e *Engine) OnAttemptEnd(id record.Identity, meta record.Metadata, attempt record.Attempt) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireStarted("attempt end"); err != nil {
		return err
	}

	if err := e.store.Append(id, meta, attempt); err != nil {
		return e.escalate(fmt.Errorf("appending attempt for %s: %w", id, err))
	}

	if e.phase == PhaseRunning {
		if err := e.transition(PhaseCollecting); err != nil {
			return err
		}
	}

	e.log.WithFields(logrus.Fields{
		"test":     id.Key(),
		"status":   attempt.Status,
		"duration": attempt.Duration,
	}).Debug("Attempt finished")

	return nil
}

// OnStep is logged only.
func (e *Engine) OnStep(id record.Identity, step string, begin bool) error {
	e.log.WithFields(logrus.Fields{
		"test":  id.Key(),
		"step":  step,
		"begin": begin,
	}).Trace("Step")

	return nil
}

// OnNonTestError records a setup or teardown error.
func (e *Engine) OnNonTestError(te record.TestError) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireStarted("non-test error"); err != nil {
		return err
	}

	if err := e.store.AddNonTestError(te); err != nil {
		return e.escalate(fmt.Errorf("recording non-test error: %w", err))
	}

	e.log.WithField("error", te.Message).Warn("Error outside of any test")

	return nil
}

// OnRunEnd freezes the store.
func (e *Engine) OnRunEnd(at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.end(at, false)
}

// Interrupt ends a run that stopped without run end. The run is marked
// interrupted so its exit is failing. It is a no-op once the run ended.
func (e *Engine) Interrupt(at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseIdle:
		if err := e.transition(PhaseRunning); err != nil {
			return err
		}

		if err := e.store.Begin(at, record.RunInfo{}); err != nil {
			return e.escalate(err)
		}
	case PhaseRunning, PhaseCollecting:
	default:
		return nil
	}

	return e.end(at, true)
}

// end freezes the store and moves to aggregating. The caller holds e.mu.
func (e *Engine) end(at time.Time, interrupted bool) error {
	if err := e.requireStarted("run end"); err != nil {
		return err
	}

	if interrupted {
		if err := e.store.MarkInterrupted(); err != nil {
			return e.escalate(err)
		}
	}

	if err := e.store.Freeze(at); err != nil {
		return e.escalate(fmt.Errorf("freezing run: %w", err))
	}

	if err := e.transition(PhaseAggregating); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"tests":       e.store.Len(),
		"interrupted": interrupted,
	}).Info("Run ended")

	return nil
}

// Finish aggregates the frozen run, runs the post-run pipeline, decides
// the exit status and writes the artifacts. It must be called once, after
// run end. Artifact write failures are returned alongside the result and
// turn the exit code into a runtime error.
func (e *Engine) Finish(ctx context.Context) (*Result, error) {
	e.mu.Lock()

	if e.phase != PhaseAggregating {
		defer e.mu.Unlock()

		return nil, transitionError(e.phase, PhasePublishing)
	}

	prev, err := summary.ReadLastRunStatus(e.cfg.OutputDir)
	if err != nil {
		e.log.WithError(err).Warn("Ignoring unreadable previous run status")
	}

	s, err := e.builder.Build(ctx, e.store)

	switch {
	case errors.Is(err, summary.ErrNoTests):
		s = nil

		e.log.Warn("No tests discovered, skipping post-run pipeline")
	case err != nil:
		e.mu.Unlock()

		return nil, fmt.Errorf("building run summary: %w", err)
	default:
		if err := e.transition(PhasePublishing); err != nil {
			e.mu.Unlock()

			return nil, err
		}
	}

	e.mu.Unlock()

	res := &Result{
		Summary:    s,
		Comparison: summary.Compare(prev, s),
	}

	if s != nil && e.orchestrator != nil {
		res.Pipeline = e.orchestrator.Run(ctx, pipeline.Input{
			Summary: s,
			Records: e.store.Records(),
		})
	}

	res.Decision = Decide(DecisionInputFrom(s, e.store))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runtimeErr != nil {
		res.Success = false
		res.ExitCode = exitcodes.RuntimeErr
		res.Reasons = append(res.Reasons, "observer error: "+e.runtimeErr.Error())
	}

	artifactErr := e.writeArtifacts(res)
	if artifactErr != nil {
		res.Success = false
		res.ExitCode = exitcodes.RuntimeErr
		res.Reasons = append(res.Reasons, "writing artifacts failed")

		e.log.WithError(artifactErr).Error("Failed to write artifacts")
	}

	e.logOutcome(res)

	if e.recorder != nil {
		e.recorder.RunFinished(s, res.ExitCode, res.Success)
	}

	if err := e.transition(PhaseFinalized); err != nil {
		return nil, err
	}

	e.result = res

	return res, artifactErr
}

// writeArtifacts writes the run artifacts. The last run status is written
// last so the next comparison only sees fully decided runs.
func (e *Engine) writeArtifacts(res *Result) error {
	dir := e.cfg.OutputDir
	owner := e.cfg.Owner

	if err := fsutil.MkdirAll(dir, owner); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var result *multierror.Error

	if res.Summary != nil {
		if err := summary.WriteRunSummary(dir, res.Summary, owner); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if res.Pipeline != nil {
		if err := res.Pipeline.Write(dir, owner); err != nil {
			result = multierror.Append(result, err)
		}
	}

	md := report.Markdown(res.ReportInput(), e.cfg.MarkdownMaxChars)
	if err := fsutil.WriteFile(filepath.Join(dir, report.MarkdownFile), []byte(md), owner); err != nil {
		result = multierror.Append(result, fmt.Errorf("writing markdown summary: %w", err))
	}

	status := summary.NewLastRunStatus(res.Success, res.Summary)
	if err := summary.WriteLastRunStatus(dir, status, owner); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (e *Engine) logOutcome(res *Result) {
	if c := res.Comparison; c != nil && c.HasChanges() {
		e.log.WithFields(logrus.Fields{
			"previous":      c.PreviousStatus,
			"new_failures":  len(c.NewFailures),
			"still_failing": len(c.StillFailing),
			"recovered":     len(c.Recovered),
		}).Info("Failures changed since last run")
	}

	fields := logrus.Fields{
		"success":   res.Success,
		"exit_code": res.ExitCode,
	}

	if s := res.Summary; s != nil {
		fields["tests"] = s.TestCount
		fields["failed"] = s.FailedCount
	}

	e.log.WithFields(fields).Info("Run finalized")
}
