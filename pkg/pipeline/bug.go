package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ethpandaops/reportoor/pkg/buildinfo"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var errNoBug = errors.New("provider returned no bug")

type bugOutcome struct {
	bug     *provider.Bug
	err     error
	skipped bool
}

func (o *Orchestrator) runBugFiling(ctx context.Context, r *run) {
	if !r.bug.Enabled() {
		o.skip(r.bug)

		return
	}

	if o.providers.BugTracker == nil {
		o.misconfigured(r.bug, "configure providers.bug_tracker", provider.ErrNotConfigured)

		return
	}

	r.bug.start()

	failures := r.in.Summary.Failures
	limiter := newLimiter(o.cfg.Pipeline.Bug.RateLimitConfig)

	var outcomes []bugOutcome
	if o.cfg.Pipeline.Bug.Concurrency > 1 {
		outcomes = o.fileBugsConcurrently(ctx, r, failures, limiter)
	} else {
		outcomes = o.fileBugsSequentially(ctx, r, failures, limiter)
	}

	// Outcomes are recorded in failure order whatever the concurrency.
	for i, out := range outcomes {
		f := failures[i]

		switch {
		case out.skipped:
			r.bug.Skipped++
		case out.err != nil:
			r.bug.Attempted++
			o.itemFailed(r.bug, f.TestID, out.err)
		default:
			r.bug.Attempted++
			r.report.Bugs = append(r.report.Bugs, BugResult{TestID: f.TestID, Bug: out.bug})
			o.itemOK(r.bug)

			o.log.WithFields(logrus.Fields{
				"channel": r.bug.Channel,
				"item":    f.TestID,
				"bug":     out.bug.ID,
			}).Info("Bug filed")
		}
	}
}

func (o *Orchestrator) fileBugsSequentially(
	ctx context.Context, r *run, failures []summary.Failure, limiter *rate.Limiter,
) []bugOutcome {
	outcomes := make([]bugOutcome, len(failures))

	aborted := false

	for i, f := range failures {
		if aborted {
			outcomes[i].skipped = true

			continue
		}

		bug, err := o.fileBug(ctx, r, f, limiter)
		outcomes[i] = bugOutcome{bug: bug, err: err}

		if err != nil && provider.KindOf(err).AbortsChannel() {
			aborted = true
		}
	}

	return outcomes
}

// fileBugsConcurrently files up to Concurrency bugs at once. Items not yet
// started when an aborting error arrives are skipped.
func (o *Orchestrator) fileBugsConcurrently(
	ctx context.Context, r *run, failures []summary.Failure, limiter *rate.Limiter,
) []bugOutcome {
	outcomes := make([]bugOutcome, len(failures))

	var aborted atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Pipeline.Bug.Concurrency)

	for i, f := range failures {
		g.Go(func() error {
			if aborted.Load() {
				outcomes[i].skipped = true

				return nil
			}

			bug, err := o.fileBug(ctx, r, f, limiter)
			outcomes[i] = bugOutcome{bug: bug, err: err}

			if err != nil && provider.KindOf(err).AbortsChannel() {
				aborted.Store(true)
			}

			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) fileBug(
	ctx context.Context, r *run, f summary.Failure, limiter *rate.Limiter,
) (*provider.Bug, error) {
	details, err := bugDetails(f, r.in.Summary.Build, o.cfg.Pipeline.Bug.Labels, o.cfg.Pipeline.Bug.Assignee)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "render bug", err)
	}

	if err := wait(ctx, limiter); err != nil {
		return nil, err
	}

	bug, err := o.providers.BugTracker.CreateBug(ctx, details)
	if err != nil {
		return nil, err
	}

	if bug == nil {
		return nil, provider.NewError(provider.KindPermanent, "create bug", errNoBug)
	}

	return bug, nil
}

func bugDetails(f summary.Failure, build *buildinfo.Info, labels []string, assignee string) (provider.BugDetails, error) {
	body, err := render(bugTmpl, struct {
		Failure summary.Failure
		Build   *buildinfo.Info
		Stack   string
	}{f, build, firstLines(f.ErrorStack, defaultStackLines)})
	if err != nil {
		return provider.BugDetails{}, err
	}

	all := make([]string, 0, len(labels)+2)
	all = append(all, "test-failure", string(f.Category))
	all = append(all, labels...)

	return provider.BugDetails{
		Title:       "[Test Failure] " + f.TestTitle,
		Description: body,
		Priority:    priorityFor(f),
		Labels:      all,
		Assignee:    assignee,
		TestID:      f.TestID,
		TestFile:    f.TestFile,
	}, nil
}
